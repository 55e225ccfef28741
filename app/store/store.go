package store

import (
	"context"

	"github.com/chatdesk/chatdesk/pkg/sqlstore"
	"github.com/chatdesk/chatdesk/pkg/types"
)

// ChatSessionStore owns the chat_sessions table. Status transitions go
// through the dedicated conditional updates, never through a generic update.
type ChatSessionStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.ChatSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*types.ChatSession, error)
	// GetLatestUnfinishedByUser returns the newest waiting/active session of
	// the user, nil when none exists.
	GetLatestUnfinishedByUser(ctx context.Context, userID string) (*types.ChatSession, error)
	// GetLatestEndedWithAgent returns the most recently ended session of the
	// user that still has an agent bound, nil when none exists.
	GetLatestEndedWithAgent(ctx context.Context, userID string) (*types.ChatSession, error)
	// ReopenWaiting resets a session to waiting. A non-empty agentID also
	// rebinds the session to that agent.
	ReopenWaiting(ctx context.Context, sessionID, agentID string) error
	// Touch bumps updated_at without changing anything else.
	Touch(ctx context.Context, sessionID string) error
	// ClaimActive conditionally assigns the session to the agent while it is
	// not yet active. started_at is only set on the first activation.
	ClaimActive(ctx context.Context, sessionID, agentID string) error
	// EndSession conditionally transitions the session to ended. Returns
	// whether this call performed the transition; a session that was already
	// ended reports false without touching the row.
	EndSession(ctx context.Context, sessionID, notes string) (bool, error)
	// ReassignAgent moves the session from one agent to another and marks it
	// transferred. A non-empty reason lands in notes. Fails when the session
	// no longer belongs to fromAgentID or has already ended.
	ReassignAgent(ctx context.Context, sessionID, fromAgentID, toAgentID, reason string) error
	Delete(ctx context.Context, sessionID string) error
	// ListWaitingByAgent returns waiting sessions assigned to the agent,
	// newest first, bounded by limit.
	ListWaitingByAgent(ctx context.Context, agentID string, limit uint64) ([]types.ChatSession, error)
	List(ctx context.Context, opts types.ListChatSessionOptions, page, pageSize uint64) ([]types.ChatSession, error)
	Total(ctx context.Context, opts types.ListChatSessionOptions) (int64, error)
}

type ChatMessageStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.ChatMessage) error
	GetByID(ctx context.Context, id string) (*types.ChatMessage, error)
	// ListBySession pages messages newest first.
	ListBySession(ctx context.Context, sessionID string, page, pageSize uint64) ([]types.ChatMessage, error)
	Total(ctx context.Context, sessionID string) (int64, error)
	// TotalBySender counts messages one sender produced, optionally bounded
	// to rows created at or after since.
	TotalBySender(ctx context.Context, senderType types.SenderType, senderID string, since int64) (int64, error)
	MarkRead(ctx context.Context, id string) error
}

// CustomerServiceStore owns the agent capacity counters. Both counter
// mutations are guarded in SQL so concurrent transitions can never push the
// counter outside [0, max_concurrent_chats].
type CustomerServiceStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.CustomerService) error
	Get(ctx context.Context, id string) (*types.CustomerService, error)
	UpdateStatus(ctx context.Context, id string, status types.AgentStatus) error
	// IncrCurrentChats adds one under the capacity bound. Returns false when
	// the agent was already at capacity.
	IncrCurrentChats(ctx context.Context, id string) (bool, error)
	// DecrCurrentChats subtracts one, floored at zero.
	DecrCurrentChats(ctx context.Context, id string) error
	List(ctx context.Context, page, pageSize uint64) ([]types.CustomerService, error)
}

// PendingNotificationStore is the store-and-forward outbox. Rows are only
// ever marked delivered, never deleted, so an interrupted replay resumes from
// the first unmarked row.
type PendingNotificationStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.PendingNotification) error
	// ListUndelivered returns undelivered rows for one recipient, oldest
	// first, bounded by limit.
	ListUndelivered(ctx context.Context, targetType types.NotifyTargetType, targetID string, limit uint64) ([]types.PendingNotification, error)
	MarkDelivered(ctx context.Context, id int64) error
}

type UserStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	// ListUsers batch-fetches profiles for waiting-queue enrichment.
	ListUsers(ctx context.Context, ids []string) ([]types.User, error)
	ListIDs(ctx context.Context) ([]string, error)
}

type Store interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	ChatSessionStore() ChatSessionStore
	ChatMessageStore() ChatMessageStore
	CustomerServiceStore() CustomerServiceStore
	PendingNotificationStore() PendingNotificationStore
	UserStore() UserStore
}
