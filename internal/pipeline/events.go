package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes status-change events for the downstream notification
// layer. Publishing is best-effort: a failed publish is logged, never
// surfaced to the caller.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier returns a Notifier over the given Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// StatusChanged publishes EVENT_STATUS_CHANGED for a successful transition.
// In-flight transitions carry the participant's contact fields so the
// notifier can reach them. Safe to call on a nil Notifier.
func (n *Notifier) StatusChanged(ctx context.Context, req Request, res *Result) {
	if n == nil || n.rdb == nil {
		return
	}
	event, _ := json.Marshal(map[string]string{
		"type":          "EVENT_STATUS_CHANGED",
		"participantId": req.ParticipantID,
		"employerId":    req.EmployerID,
		"status":        string(req.Status),
		"recordId":      res.ID,
		"emailAddress":  res.EmailAddress,
		"phoneNumber":   res.PhoneNumber,
	})
	if err := n.rdb.Publish(ctx, "EVENT_STATUS_CHANGED", event).Err(); err != nil {
		slog.Warn("publish EVENT_STATUS_CHANGED failed", "err", err)
	}
}
