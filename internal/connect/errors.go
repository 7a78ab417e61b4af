package connect

import "errors"

var (
	ErrInvalidState             = errors.New("invalid authorization state")
	ErrExchangeFailed           = errors.New("authorization code exchange failed")
	ErrNotConnected             = errors.New("calendar not connected")
	ErrReauthorizationRequired  = errors.New("calendar reauthorization required")
	ErrTransientProviderFailure = errors.New("calendar provider temporarily unavailable")
	ErrUserIDEmpty              = errors.New("user id cannot be empty")
)

const (
	MessageReconnect     = "please reconnect your calendar account"
	MessageTryAgain      = "please try again"
	MessageInvalidLink   = "authorization link expired or invalid"
	MessageInternalError = "something went wrong"
)

// UserMessage returns the instruction shown to the end user for err.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrReauthorizationRequired):
		return MessageReconnect
	case errors.Is(err, ErrTransientProviderFailure):
		return MessageTryAgain
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrExchangeFailed):
		return MessageInvalidLink
	}
	return MessageInternalError
}
