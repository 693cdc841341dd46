// Package convo implements the lifecycle of a split conversation: access
// scope calculation, channel provisioning, termination watching, history
// archival, and the conductor that drives one conversation end to end.
package convo

import (
	"maps"

	"github.com/tinyland-inc/convosplit/pkg/platform"
)

// fullControl is the overwrite the bot always holds so it can re-lock and
// delete the channel no matter who else is restricted.
func fullControl() platform.Overwrite {
	return platform.Overwrite{
		View:        platform.Allow,
		History:     platform.Allow,
		Send:        platform.Allow,
		ManagePerms: platform.Allow,
		EmbedLinks:  platform.Allow,
	}
}

func readSend() platform.Overwrite {
	return platform.Overwrite{View: platform.Allow, Send: platform.Allow}
}

// BuildScope derives the new channel's overwrites from the originating
// channel's. The bot's entry always wins; when a restricted member list is
// given, everyone else loses send permission, but the initiator is re-granted
// so they can never lock themselves out.
func BuildScope(
	origin platform.Scope,
	guildID string,
	bot, initiator platform.Principal,
	members []platform.Principal,
) platform.Scope {
	scope := make(platform.Scope, len(origin)+len(members)+2)
	maps.Copy(scope, origin)

	scope[bot] = fullControl()

	everyone := platform.Everyone(guildID)
	if _, ok := scope[everyone]; !ok {
		scope[everyone] = readSend()
	}

	if len(members) > 0 {
		// The originating channel may allow more than just these people to
		// send; deny everyone else explicitly.
		for p, ow := range scope {
			if p == bot {
				continue
			}
			ow.Send = platform.Deny
			scope[p] = ow
		}
		for _, m := range members {
			scope[m] = readSend()
		}
		scope[initiator] = readSend()
	}

	return scope
}

// LockedScope is applied the instant a conversation concludes: only the bot
// retains access while the history is captured.
func LockedScope(guildID string, bot platform.Principal) platform.Scope {
	return platform.Scope{
		platform.Everyone(guildID): {View: platform.Deny, Send: platform.Deny},
		bot:                        fullControl(),
	}
}
