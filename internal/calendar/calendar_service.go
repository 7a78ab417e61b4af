package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/khanghh/classmeet/params"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

// TokenSource hands out access tokens for a user. RefreshAccessToken is used
// when the calendar API rejects a token that has not expired yet.
type TokenSource interface {
	GetAccessToken(ctx context.Context, userID string) (string, error)
	RefreshAccessToken(ctx context.Context, userID string) (string, error)
}

type Config struct {
	BaseURL    string
	CalendarID string
	HTTPClient *http.Client
}

type CalendarService struct {
	tokens     TokenSource
	baseURL    string
	calendarID string
	httpClient *http.Client
}

// CreateMeeting creates an event with a Meet conference on the user's calendar.
// A 401 triggers one forced token refresh and a single retry; a refresh the
// provider rejects surfaces as the token source's reauthorization error.
func (s *CalendarService) CreateMeeting(ctx context.Context, userID string, req *MeetingRequest) (*Meeting, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	accessToken, err := s.tokens.GetAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(newEventBody(req, uuid.NewString()))
	if err != nil {
		return nil, err
	}

	body, err := s.insertEvent(ctx, accessToken, payload)
	if errors.Is(err, ErrCalendarUnauthorized) {
		slog.Info("Calendar rejected access token, refreshing", "userID", userID)
		if accessToken, err = s.tokens.RefreshAccessToken(ctx, userID); err != nil {
			return nil, err
		}
		body, err = s.insertEvent(ctx, accessToken, payload)
	}
	if err != nil {
		slog.Warn("Calendar event creation failed", "userID", userID, "error", err)
		return nil, err
	}
	return parseMeeting(body, req), nil
}

func (s *CalendarService) insertEvent(ctx context.Context, accessToken string, payload []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events?conferenceDataVersion=1&sendUpdates=all",
		s.baseURL, url.PathEscape(s.calendarID))

	ctx, cancel := context.WithTimeout(ctx, params.ProviderRequestTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client(ctx, accessToken).Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCalendarUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCalendarUnavailable, err)
	}
	if err := checkResponse(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *CalendarService) client(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

func checkResponse(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	message := gjson.GetBytes(body, "error.message").String()
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrCalendarUnauthorized, message)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrCalendarUnavailable, status, message)
	}
	return fmt.Errorf("calendar api status %d: %s", status, message)
}

func parseMeeting(body []byte, req *MeetingRequest) *Meeting {
	result := gjson.ParseBytes(body)
	meeting := &Meeting{
		ID:          result.Get("id").String(),
		Summary:     result.Get("summary").String(),
		HTMLLink:    result.Get("htmlLink").String(),
		MeetingLink: result.Get("hangoutLink").String(),
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if meeting.MeetingLink == "" {
		meeting.MeetingLink = result.Get(`conferenceData.entryPoints.#(entryPointType=="video").uri`).String()
	}
	if start, err := time.Parse(time.RFC3339, result.Get("start.dateTime").String()); err == nil {
		meeting.StartTime = start
	}
	if end, err := time.Parse(time.RFC3339, result.Get("end.dateTime").String()); err == nil {
		meeting.EndTime = end
	}
	return meeting
}

func NewCalendarService(tokens TokenSource, cfg Config) *CalendarService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &CalendarService{
		tokens:     tokens,
		baseURL:    cfg.BaseURL,
		calendarID: cfg.CalendarID,
		httpClient: cfg.HTTPClient,
	}
}
