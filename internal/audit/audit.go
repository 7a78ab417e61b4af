package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/khanghh/classmeet/model"
)

var auditRepo AuditEventRepository
var initOnce sync.Once

func Initialize(repo AuditEventRepository) {
	initOnce.Do(func() {
		auditRepo = repo
	})
}

const (
	EventTypeCalendarConnected      = "calendar_connected"
	EventTypeCalendarConnectFailed  = "calendar_connect_failed"
	EventTypeCalendarDisconnected   = "calendar_disconnected"
	EventTypeCalendarReauthRequired = "calendar_reauth_required"
)

type ConnectionRecord struct {
	UserID    string
	Provider  string
	EventType string
	IP        string
	UserAgent string
	Reason    string
}

// RecordConnection stores a calendar connection event. Audit failures are
// logged and never returned to the request that triggered them.
func RecordConnection(ctx context.Context, record ConnectionRecord) {
	if auditRepo == nil {
		return
	}
	err := auditRepo.RecordEvent(ctx, &model.AuditEvent{
		UserID:    record.UserID,
		EventType: record.EventType,
		Provider:  record.Provider,
		Reason:    truncate(record.Reason, 512),
		IP:        record.IP,
		UserAgent: truncate(record.UserAgent, 512),
	})
	if err != nil {
		slog.Error("Failed to record audit event", "eventType", record.EventType, "userID", record.UserID, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
