package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/classmeet/internal/calendar"
	"github.com/khanghh/classmeet/internal/connect"
)

const (
	reasonReconnect   = "reconnectRequired"
	reasonUnavailable = "providerUnavailable"
	reasonInvalidLink = "invalidAuthorization"
	reasonInvalid     = "invalidRequest"
)

// errorStatus maps a lifecycle error to its HTTP status and error reason.
// ok is false for errors that are not part of the calendar taxonomy.
func errorStatus(err error) (status int, reason string, ok bool) {
	switch {
	case errors.Is(err, connect.ErrNotConnected),
		errors.Is(err, connect.ErrReauthorizationRequired),
		errors.Is(err, calendar.ErrCalendarUnauthorized):
		return fiber.StatusConflict, reasonReconnect, true
	case errors.Is(err, connect.ErrTransientProviderFailure),
		errors.Is(err, calendar.ErrCalendarUnavailable):
		return fiber.StatusServiceUnavailable, reasonUnavailable, true
	case errors.Is(err, connect.ErrInvalidState),
		errors.Is(err, connect.ErrExchangeFailed):
		return fiber.StatusBadRequest, reasonInvalidLink, true
	case errors.Is(err, calendar.ErrInvalidMeeting),
		errors.Is(err, connect.ErrUserIDEmpty):
		return fiber.StatusBadRequest, reasonInvalid, true
	}
	return fiber.StatusInternalServerError, "", false
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, calendar.ErrCalendarUnauthorized):
		return connect.MessageReconnect
	case errors.Is(err, calendar.ErrCalendarUnavailable):
		return connect.MessageTryAgain
	}
	return connect.UserMessage(err)
}

// writeError sends known errors as an API error and hands anything else to
// the app's error handler.
func writeError(ctx *fiber.Ctx, err error) error {
	status, reason, ok := errorStatus(err)
	if !ok {
		return err
	}
	message := userMessage(err)
	if reason == reasonInvalid {
		message = err.Error()
	}
	return ctx.Status(status).JSON(NewErrorResponse(status, message, APIErrorDetail{
		Domain:  "calendar",
		Reason:  reason,
		Message: message,
	}))
}
