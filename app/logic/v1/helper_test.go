package v1_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatdesk/chatdesk/app/core"
	"github.com/chatdesk/chatdesk/pkg/socket/hub"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/utils"
)

var (
	ctx = context.Background()

	coreOnce sync.Once
	testCore *core.Core
)

// setupCore wires a real core from TEST_CONFIG_PATH. Tests that need it skip
// when the environment is not prepared.
func setupCore(t *testing.T) *core.Core {
	t.Helper()
	if os.Getenv("TEST_CONFIG_PATH") == "" {
		t.Skip("TEST_CONFIG_PATH not set")
	}
	coreOnce.Do(func() {
		testCore = core.MustSetupCore(core.MustLoadBaseConfig(os.Getenv("TEST_CONFIG_PATH")))
	})
	return testCore
}

// newHubConn registers a real server-side websocket on the hub. The client
// half just drains frames so the write pump never blocks.
func newHubConn(t *testing.T, c *core.Core, identity hub.Identity) *hub.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial(strings.Replace(srv.URL, "http", "ws", 1), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn := c.Hub().Register(utils.GenRandomID(), <-serverSide)
	conn.SetIdentity(identity)
	t.Cleanup(func() { c.Hub().Unregister(conn) })
	return conn
}

func createTestUser(t *testing.T, c *core.Core) types.User {
	t.Helper()
	user := types.User{
		ID:       utils.GenUniqIDStr(),
		Username: fmt.Sprintf("user-%d", time.Now().UnixNano()),
		Email:    "user@example.com",
	}
	if err := c.Store().UserStore().Create(ctx, user); err != nil {
		t.Fatal(err)
	}
	return user
}

func createTestAgent(t *testing.T, c *core.Core, maxChats int) types.CustomerService {
	t.Helper()
	agent := types.CustomerService{
		ID:                 utils.GenUniqIDStr(),
		Username:           fmt.Sprintf("agent-%d", time.Now().UnixNano()),
		Status:             types.AGENT_STATUS_ONLINE,
		MaxConcurrentChats: maxChats,
	}
	if err := c.Store().CustomerServiceStore().Create(ctx, agent); err != nil {
		t.Fatal(err)
	}
	if err := c.Store().CustomerServiceStore().UpdateStatus(ctx, agent.ID, types.AGENT_STATUS_ONLINE); err != nil {
		t.Fatal(err)
	}
	return agent
}

func createWaitingSession(t *testing.T, c *core.Core, userID, agentID string) types.ChatSession {
	t.Helper()
	session := types.ChatSession{
		SessionID: fmt.Sprintf("%s_%s", userID, agentID),
		UserID:    userID,
		AgentID:   agentID,
	}
	if err := c.Store().ChatSessionStore().Create(ctx, session); err != nil {
		t.Fatal(err)
	}
	return session
}
