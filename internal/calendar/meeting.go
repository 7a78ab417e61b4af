package calendar

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type MeetingRequest struct {
	Summary     string    `json:"summary"     validate:"required,max=1024"`
	Description string    `json:"description" validate:"max=8192"`
	StartTime   time.Time `json:"startTime"   validate:"required"`
	EndTime     time.Time `json:"endTime"     validate:"required,gtfield=StartTime"`
	TimeZone    string    `json:"timeZone"    validate:"omitempty,max=64"`
	Attendees   []string  `json:"attendees"   validate:"max=100,dive,email"`
}

func (r *MeetingRequest) Validate() error {
	v := validator.New()
	if err := v.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMeeting, err)
	}
	return nil
}

type Meeting struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	HTMLLink    string    `json:"htmlLink"`
	MeetingLink string    `json:"meetingLink"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventAttendee struct {
	Email string `json:"email"`
}

type eventBody struct {
	Summary        string          `json:"summary"`
	Description    string          `json:"description,omitempty"`
	Start          eventTime       `json:"start"`
	End            eventTime       `json:"end"`
	Attendees      []eventAttendee `json:"attendees,omitempty"`
	ConferenceData conferenceData  `json:"conferenceData"`
}

type conferenceData struct {
	CreateRequest createRequest `json:"createRequest"`
}

type createRequest struct {
	RequestID             string                `json:"requestId"`
	ConferenceSolutionKey conferenceSolutionKey `json:"conferenceSolutionKey"`
}

type conferenceSolutionKey struct {
	Type string `json:"type"`
}

func newEventBody(req *MeetingRequest, requestID string) *eventBody {
	body := &eventBody{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       eventTime{DateTime: req.StartTime.Format(time.RFC3339), TimeZone: req.TimeZone},
		End:         eventTime{DateTime: req.EndTime.Format(time.RFC3339), TimeZone: req.TimeZone},
		ConferenceData: conferenceData{
			CreateRequest: createRequest{
				RequestID:             requestID,
				ConferenceSolutionKey: conferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	for _, email := range req.Attendees {
		body.Attendees = append(body.Attendees, eventAttendee{Email: email})
	}
	return body
}
