// ConvoSplit - Ephemeral split-conversation bot for Discord
// License: MIT
//
// Copyright (c) 2026 ConvoSplit contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/convosplit/cmd/convosplit/internal"
	"github.com/tinyland-inc/convosplit/cmd/convosplit/internal/gateway"
	"github.com/tinyland-inc/convosplit/cmd/convosplit/internal/onboard"
	"github.com/tinyland-inc/convosplit/cmd/convosplit/internal/version"
)

func NewConvosplitCommand() *cobra.Command {
	short := fmt.Sprintf("%s convosplit - Ephemeral conversation channels v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "convosplit",
		Short:   short,
		Example: "convosplit gateway",
	}

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		gateway.NewGatewayCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewConvosplitCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
