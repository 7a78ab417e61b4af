package api

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/classmeet/internal/audit"
	"github.com/khanghh/classmeet/internal/calendar"
	"github.com/khanghh/classmeet/internal/connect"
	"github.com/khanghh/classmeet/internal/mail"
	"github.com/khanghh/classmeet/internal/middlewares"
	"github.com/khanghh/classmeet/internal/render"
)

type ConnectService interface {
	InitiateAuthorization(ctx context.Context, userID string) (string, error)
	HandleCallback(ctx context.Context, code string, state string) (*connect.CallbackResult, error)
	Revoke(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*connect.ConnectionStatus, error)
}

type CalendarService interface {
	CreateMeeting(ctx context.Context, userID string, req *calendar.MeetingRequest) (*calendar.Meeting, error)
}

type CalendarHandlerConfig struct {
	ProviderName string
	// SuccessRedirect and FailureRedirect replace the result page when set.
	SuccessRedirect string
	FailureRedirect string
	// ReconnectURL is linked from the reconnect email.
	ReconnectURL string
}

type CalendarHandler struct {
	connectService  ConnectService
	calendarService CalendarService
	mailSender      mail.MailSender
	config          CalendarHandlerConfig
}

func (h *CalendarHandler) recordEvent(ctx *fiber.Ctx, userID, eventType, reason string) {
	audit.RecordConnection(ctx.Context(), audit.ConnectionRecord{
		UserID:    userID,
		Provider:  h.config.ProviderName,
		EventType: eventType,
		IP:        ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
		Reason:    reason,
	})
}

// GetAuthorize returns the provider consent URL for the signed in user.
func (h *CalendarHandler) GetAuthorize(ctx *fiber.Ctx) error {
	authURL, err := h.connectService.InitiateAuthorization(ctx.Context(), middlewares.GetUserID(ctx))
	if err != nil {
		return writeError(ctx, err)
	}
	if ctx.QueryBool("redirect") {
		return ctx.Redirect(authURL)
	}
	return ctx.JSON(NewDataResponse(AuthorizeURLResponse{URL: authURL}))
}

func (h *CalendarHandler) callbackFailure(ctx *fiber.Ctx, errCode string, message string) error {
	if h.config.FailureRedirect != "" {
		return redirect(ctx, h.config.FailureRedirect, "error", errCode)
	}
	return render.RenderCallbackPage(ctx, render.CallbackPageData{ErrorMsg: message})
}

// GetCallback completes the authorization code grant. It is reached by the
// browser redirect from the provider, so it carries no bearer token; the user
// is identified by the state.
func (h *CalendarHandler) GetCallback(ctx *fiber.Ctx) error {
	if providerErr := ctx.Query("error"); providerErr != "" {
		slog.Info("Calendar authorization declined", "error", providerErr)
		return h.callbackFailure(ctx, "access_denied", "calendar access was not granted")
	}

	result, err := h.connectService.HandleCallback(ctx.Context(), ctx.Query("code"), ctx.Query("state"))
	if err != nil {
		status, reason, ok := errorStatus(err)
		if !ok {
			slog.Error("Calendar callback failed", "error", err)
			status, reason = fiber.StatusInternalServerError, "internalError"
		}
		slog.Info("Calendar callback rejected", "status", status, "error", err)
		h.recordEvent(ctx, "", audit.EventTypeCalendarConnectFailed, err.Error())
		return h.callbackFailure(ctx, reason, userMessage(err))
	}

	h.recordEvent(ctx, result.UserID, audit.EventTypeCalendarConnected, "")
	if h.config.SuccessRedirect != "" {
		return redirect(ctx, h.config.SuccessRedirect, "calendar", "connected")
	}
	return render.RenderCallbackPage(ctx, render.CallbackPageData{Success: true})
}

func (h *CalendarHandler) GetStatus(ctx *fiber.Ctx) error {
	status, err := h.connectService.Status(ctx.Context(), middlewares.GetUserID(ctx))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(status))
}

func (h *CalendarHandler) PostDisconnect(ctx *fiber.Ctx) error {
	userID := middlewares.GetUserID(ctx)
	if err := h.connectService.Revoke(ctx.Context(), userID); err != nil {
		return writeError(ctx, err)
	}
	h.recordEvent(ctx, userID, audit.EventTypeCalendarDisconnected, "")
	return ctx.JSON(NewDataResponse(DisconnectResponse{Connected: false}))
}

func (h *CalendarHandler) PostMeeting(ctx *fiber.Ctx) error {
	var req calendar.MeetingRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "invalid request body"),
		)
	}
	userID := middlewares.GetUserID(ctx)
	meeting, err := h.calendarService.CreateMeeting(ctx.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, connect.ErrReauthorizationRequired) || errors.Is(err, calendar.ErrCalendarUnauthorized) {
			h.recordEvent(ctx, userID, audit.EventTypeCalendarReauthRequired, err.Error())
			h.notifyReconnect(middlewares.GetUserEmail(ctx))
		}
		return writeError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(meeting))
}

func (h *CalendarHandler) notifyReconnect(email string) {
	if h.mailSender == nil || email == "" || h.config.ReconnectURL == "" {
		return
	}
	if err := mail.SendReconnectCalendar(h.mailSender, email, h.config.ReconnectURL); err != nil {
		slog.Error("Failed to send reconnect calendar email", "error", err)
	}
}

func redirect(ctx *fiber.Ctx, location string, values ...string) error {
	u, err := url.Parse(location)
	if err != nil {
		return err
	}
	query := u.Query()
	for i := 0; i+1 < len(values); i += 2 {
		if values[i+1] != "" {
			query.Set(values[i], values[i+1])
		}
	}
	u.RawQuery = query.Encode()
	return ctx.Redirect(u.String())
}

func NewCalendarHandler(connectService ConnectService, calendarService CalendarService, mailSender mail.MailSender, config CalendarHandlerConfig) *CalendarHandler {
	return &CalendarHandler{
		connectService:  connectService,
		calendarService: calendarService,
		mailSender:      mailSender,
		config:          config,
	}
}
