package v1

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chatdesk/chatdesk/app/core"
	"github.com/chatdesk/chatdesk/pkg/errors"
	"github.com/chatdesk/chatdesk/pkg/i18n"
	"github.com/chatdesk/chatdesk/pkg/socket/hub"
	"github.com/chatdesk/chatdesk/pkg/types"
)

// DeliveryLogic decides between live fan-out and the store-and-forward outbox.
// A recipient with at least one live connection gets the event immediately,
// everyone else gets a pending-notification row replayed at their next login.
type DeliveryLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewDeliveryLogic(ctx context.Context, core *core.Core) *DeliveryLogic {
	return &DeliveryLogic{
		ctx:  ctx,
		core: core,
	}
}

func (l *DeliveryLogic) NotifyUser(userID, event string, data any) {
	l.notifyOrStore(types.NOTIFY_TARGET_USER, userID, event, data, l.core.Hub().SendToUser(userID, event, data))
}

func (l *DeliveryLogic) NotifyAgent(agentID, event string, data any) {
	l.notifyOrStore(types.NOTIFY_TARGET_AGENT, agentID, event, data, l.core.Hub().SendToAgent(agentID, event, data))
}

// notifyOrStore persists the event when live delivery reached nobody. A failed
// insert is logged, never propagated: losing one offline notification must not
// fail the operation that produced it.
func (l *DeliveryLogic) notifyOrStore(targetType types.NotifyTargetType, targetID, event string, data any, delivered bool) {
	if delivered {
		l.core.Metrics().NotificationSentInc(event)
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("marshal pending notification payload failed",
			slog.String("event", event), slog.String("target_id", targetID), slog.Any("error", err))
		return
	}

	err = l.core.Store().PendingNotificationStore().Create(l.ctx, types.PendingNotification{
		EventType:  event,
		TargetType: targetType,
		TargetID:   targetID,
		Payload:    payload,
	})
	if err != nil {
		slog.Error("store pending notification failed",
			slog.String("event", event), slog.String("target_id", targetID), slog.Any("error", err))
		return
	}
	l.core.Metrics().NotificationStoredInc(event)
}

// ReplayBacklog flushes the recipient's undelivered notifications onto one
// connection, oldest first. Each row is marked delivered only after the frame
// was queued, so an interrupted replay resumes from the first unmarked row.
func (l *DeliveryLogic) ReplayBacklog(conn *hub.Conn, targetType types.NotifyTargetType, targetID string) error {
	rows, err := l.core.Store().PendingNotificationStore().ListUndelivered(l.ctx, targetType, targetID, l.core.Cfg().Chat.BacklogLimit)
	if err != nil {
		return errors.New("DeliveryLogic.ReplayBacklog.PendingNotificationStore.ListUndelivered", i18n.ERROR_INTERNAL, err)
	}

	for _, row := range rows {
		if err = conn.SendEvent(row.EventType, row.Payload); err != nil {
			slog.Warn("backlog replay interrupted",
				slog.String("target_id", targetID), slog.Int64("notification_id", row.ID), slog.Any("error", err))
			break
		}
		if err = l.core.Store().PendingNotificationStore().MarkDelivered(l.ctx, row.ID); err != nil {
			slog.Error("mark notification delivered failed",
				slog.Int64("notification_id", row.ID), slog.Any("error", err))
			break
		}
		l.core.Metrics().NotificationReplayedInc(string(targetType))
	}
	return nil
}
