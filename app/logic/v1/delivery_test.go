package v1_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	v1 "github.com/chatdesk/chatdesk/app/logic/v1"
	"github.com/chatdesk/chatdesk/pkg/socket/hub"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/types/protocol"
)

func Test_NotifyOfflineUserLandsInOutbox(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewDeliveryLogic(ctx, c)

	user := createTestUser(t, c)
	logic.NotifyUser(user.ID, protocol.EventSessionAccepted, protocol.SessionAcceptedPayload{SessionID: "s1"})

	rows, err := c.Store().PendingNotificationStore().ListUndelivered(ctx, types.NOTIFY_TARGET_USER, user.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, rows, 1)
	assert.Equal(t, protocol.EventSessionAccepted, rows[0].EventType)
}

func Test_NotifyLiveUserSkipsOutbox(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewDeliveryLogic(ctx, c)

	user := createTestUser(t, c)
	conn := newHubConn(t, c, userIdentity(user))
	c.Hub().JoinRoom(hub.UserRoom(user.ID), conn)

	logic.NotifyUser(user.ID, protocol.EventSessionAccepted, protocol.SessionAcceptedPayload{SessionID: "s1"})

	rows, err := c.Store().PendingNotificationStore().ListUndelivered(ctx, types.NOTIFY_TARGET_USER, user.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, rows)
}

func Test_ReplayBacklogDeliversExactlyOnce(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewDeliveryLogic(ctx, c)

	user := createTestUser(t, c)
	logic.NotifyUser(user.ID, protocol.EventSessionEnded, protocol.SessionEndedPayload{SessionID: "s1"})
	logic.NotifyUser(user.ID, protocol.EventSessionRejected, protocol.SessionRejectedPayload{SessionID: "s2"})

	conn := newHubConn(t, c, userIdentity(user))
	if err := logic.ReplayBacklog(conn, types.NOTIFY_TARGET_USER, user.ID); err != nil {
		t.Fatal(err)
	}

	rows, err := c.Store().PendingNotificationStore().ListUndelivered(ctx, types.NOTIFY_TARGET_USER, user.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, rows)

	// A second replay finds nothing to send.
	if err := logic.ReplayBacklog(conn, types.NOTIFY_TARGET_USER, user.ID); err != nil {
		t.Fatal(err)
	}
}
