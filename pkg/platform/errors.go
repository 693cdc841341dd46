package platform

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrPermissionDenied indicates the platform rejected an operation for
	// lack of a bot capability.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates the target resource no longer exists.
	ErrNotFound = errors.New("not found")

	// ErrCategoryMissing indicates no channel category matched the
	// configured marker.
	ErrCategoryMissing = errors.New("conversation category missing")
)

// mapError folds discordgo REST errors into the package sentinels so the core
// can branch on them with errors.Is.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return err
	}

	if rerr.Message != nil {
		switch rerr.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return errors.Join(ErrPermissionDenied, err)
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage:
			return errors.Join(ErrNotFound, err)
		}
	}

	if rerr.Response != nil {
		switch rerr.Response.StatusCode {
		case http.StatusForbidden:
			return errors.Join(ErrPermissionDenied, err)
		case http.StatusNotFound:
			return errors.Join(ErrNotFound, err)
		}
	}

	return err
}
