package calendar

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type staticTokens map[string]string

var errNoToken = assert.AnError

func (t staticTokens) GetAccessToken(ctx context.Context, userID string) (string, error) {
	token, ok := t[userID]
	if !ok {
		return "", errNoToken
	}
	return token, nil
}

func (t staticTokens) RefreshAccessToken(ctx context.Context, userID string) (string, error) {
	return t.GetAccessToken(ctx, userID)
}

func newMeetingRequest() *MeetingRequest {
	start := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)
	return &MeetingRequest{
		Summary:   "Algebra I - lesson 4",
		StartTime: start,
		EndTime:   start.Add(45 * time.Minute),
		Attendees: []string{"student@example.com"},
	}
}

func TestCreateMeeting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("conferenceDataVersion"))
		assert.Equal(t, "Bearer teacher-token", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "hangoutsMeet", gjson.GetBytes(body, "conferenceData.createRequest.conferenceSolutionKey.type").String())
		_, err = uuid.Parse(gjson.GetBytes(body, "conferenceData.createRequest.requestId").String())
		assert.NoError(t, err)
		assert.Equal(t, "student@example.com", gjson.GetBytes(body, "attendees.0.email").String())
		assert.Equal(t, "2026-11-02T09:00:00Z", gjson.GetBytes(body, "start.dateTime").String())

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "evt123",
			"summary": "Algebra I - lesson 4",
			"htmlLink": "https://calendar.google.com/event?eid=evt123",
			"hangoutLink": "https://meet.google.com/abc-defg-hij",
			"start": {"dateTime": "2026-11-02T09:00:00Z"},
			"end": {"dateTime": "2026-11-02T09:45:00Z"}
		}`)
	}))
	defer server.Close()

	svc := NewCalendarService(staticTokens{"teacher": "teacher-token"}, Config{BaseURL: server.URL})
	meeting, err := svc.CreateMeeting(context.Background(), "teacher", newMeetingRequest())
	require.NoError(t, err)
	assert.Equal(t, "evt123", meeting.ID)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", meeting.MeetingLink)
	assert.Equal(t, "https://calendar.google.com/event?eid=evt123", meeting.HTMLLink)
	assert.Equal(t, 45*time.Minute, meeting.EndTime.Sub(meeting.StartTime))
}

func TestCreateMeeting_EntryPointFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"evt1","conferenceData":{"entryPoints":[
			{"entryPointType":"phone","uri":"tel:+1-555"},
			{"entryPointType":"video","uri":"https://meet.google.com/xyz"}]}}`)
	}))
	defer server.Close()

	svc := NewCalendarService(staticTokens{"teacher": "t"}, Config{BaseURL: server.URL, CalendarID: "team@example.com"})
	meeting, err := svc.CreateMeeting(context.Background(), "teacher", newMeetingRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/xyz", meeting.MeetingLink)
}

func TestCreateMeeting_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrCalendarUnauthorized},
		{"rate limited", http.StatusTooManyRequests, ErrCalendarUnavailable},
		{"server error", http.StatusBadGateway, ErrCalendarUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":{"code":1,"message":"nope"}}`)
			}))
			defer server.Close()

			svc := NewCalendarService(staticTokens{"teacher": "t"}, Config{BaseURL: server.URL})
			_, err := svc.CreateMeeting(context.Background(), "teacher", newMeetingRequest())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestCreateMeeting_TokenError(t *testing.T) {
	svc := NewCalendarService(staticTokens{}, Config{BaseURL: "http://127.0.0.1:1"})
	_, err := svc.CreateMeeting(context.Background(), "nobody", newMeetingRequest())
	assert.ErrorIs(t, err, errNoToken)
}

func TestMeetingRequest_Validate(t *testing.T) {
	valid := newMeetingRequest()
	assert.NoError(t, valid.Validate())

	noSummary := newMeetingRequest()
	noSummary.Summary = ""
	assert.ErrorIs(t, noSummary.Validate(), ErrInvalidMeeting)

	backwards := newMeetingRequest()
	backwards.EndTime = backwards.StartTime.Add(-time.Minute)
	assert.ErrorIs(t, backwards.Validate(), ErrInvalidMeeting)

	badAttendee := newMeetingRequest()
	badAttendee.Attendees = []string{"not-an-email"}
	assert.ErrorIs(t, badAttendee.Validate(), ErrInvalidMeeting)
}
