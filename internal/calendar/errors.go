package calendar

import "errors"

var (
	// ErrCalendarUnauthorized means the calendar API refused the access
	// token; the user has to reconnect.
	ErrCalendarUnauthorized = errors.New("calendar api rejected access token")
	ErrCalendarUnavailable  = errors.New("calendar api unavailable")
	ErrInvalidMeeting       = errors.New("invalid meeting request")
)
