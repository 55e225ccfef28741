package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/chatdesk/chatdesk/pkg/register"
	"github.com/chatdesk/chatdesk/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.ChatSessionStore = NewChatSessionStore(provider)
	})
}

type ChatSessionStore struct {
	CommonFields
}

func NewChatSessionStore(provider SqlProviderAchieve) *ChatSessionStore {
	repo := &ChatSessionStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_CHAT_SESSION)
	repo.SetAllColumns("id", "session_id", "user_id", "visitor_id", "visitor_name", "visitor_email",
		"customer_service_id", "status", "priority", "notes", "created_at", "started_at", "ended_at", "updated_at")
	return repo
}

func (s *ChatSessionStore) Create(ctx context.Context, data types.ChatSession) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	if data.UpdatedAt == 0 {
		data.UpdatedAt = data.CreatedAt
	}
	if data.Status == "" {
		data.Status = types.CHAT_SESSION_STATUS_WAITING
	}
	if data.Priority == "" {
		data.Priority = types.SESSION_PRIORITY_NORMAL
	}

	query := sq.Insert(s.GetTable()).
		Columns("session_id", "user_id", "visitor_id", "visitor_name", "visitor_email",
			"customer_service_id", "status", "priority", "notes", "created_at", "started_at", "ended_at", "updated_at").
		Values(data.SessionID, data.UserID, data.VisitorID, data.VisitorName, data.VisitorEmail,
			data.AgentID, data.Status, data.Priority, data.Notes, data.CreatedAt, data.StartedAt, data.EndedAt, data.UpdatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *ChatSessionStore) GetBySessionID(ctx context.Context, sessionID string) (*types.ChatSession, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"session_id": sessionID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.ChatSession
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

func (s *ChatSessionStore) GetLatestUnfinishedByUser(ctx context.Context, userID string) (*types.ChatSession, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"user_id": userID, "status": []types.ChatSessionStatus{
			types.CHAT_SESSION_STATUS_WAITING, types.CHAT_SESSION_STATUS_ACTIVE,
		}}).
		OrderBy("created_at DESC").Limit(1)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.ChatSession
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

func (s *ChatSessionStore) GetLatestEndedWithAgent(ctx context.Context, userID string) (*types.ChatSession, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"user_id": userID, "status": types.CHAT_SESSION_STATUS_ENDED}).
		Where(sq.NotEq{"customer_service_id": ""}).
		OrderBy("ended_at DESC").Limit(1)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.ChatSession
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

func (s *ChatSessionStore) ReopenWaiting(ctx context.Context, sessionID, agentID string) error {
	query := sq.Update(s.GetTable()).Where(sq.Eq{"session_id": sessionID}).
		Set("status", types.CHAT_SESSION_STATUS_WAITING).
		Set("ended_at", 0).
		Set("updated_at", time.Now().Unix())
	if agentID != "" {
		query = query.Set("customer_service_id", agentID)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *ChatSessionStore) Touch(ctx context.Context, sessionID string) error {
	query := sq.Update(s.GetTable()).Where(sq.Eq{"session_id": sessionID}).
		Set("updated_at", time.Now().Unix())

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// ClaimActive assigns the session to the agent while it is not already
// active. The affected-row count is deliberately not used as the source of
// truth; callers re-read the row to verify the claim.
func (s *ChatSessionStore) ClaimActive(ctx context.Context, sessionID, agentID string) error {
	now := time.Now().Unix()
	query := sq.Update(s.GetTable()).
		Where(sq.Eq{"session_id": sessionID}).
		Where(sq.NotEq{"status": types.CHAT_SESSION_STATUS_ACTIVE}).
		Set("customer_service_id", agentID).
		Set("status", types.CHAT_SESSION_STATUS_ACTIVE).
		Set("started_at", sq.Expr(fmt.Sprintf("CASE WHEN started_at = 0 THEN %d ELSE started_at END", now))).
		Set("updated_at", now)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// EndSession transitions the session to ended unless it already is. Returns
// whether this call won the transition, so exactly one of two concurrent ends
// releases the capacity counter.
func (s *ChatSessionStore) EndSession(ctx context.Context, sessionID, notes string) (bool, error) {
	now := time.Now().Unix()
	query := sq.Update(s.GetTable()).
		Where(sq.Eq{"session_id": sessionID}).
		Where(sq.NotEq{"status": types.CHAT_SESSION_STATUS_ENDED}).
		Set("status", types.CHAT_SESSION_STATUS_ENDED).
		Set("ended_at", now).
		Set("updated_at", now)
	if notes != "" {
		query = query.Set("notes", notes)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return false, ErrorSqlBuild(err)
	}

	result, err := s.GetMaster(ctx).Exec(queryString, args...)
	if err != nil {
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (s *ChatSessionStore) ReassignAgent(ctx context.Context, sessionID, fromAgentID, toAgentID, reason string) error {
	query := sq.Update(s.GetTable()).
		Where(sq.Eq{"session_id": sessionID, "customer_service_id": fromAgentID}).
		Where(sq.NotEq{"status": types.CHAT_SESSION_STATUS_ENDED}).
		Set("customer_service_id", toAgentID).
		Set("status", types.CHAT_SESSION_STATUS_TRANSFERRED).
		Set("updated_at", time.Now().Unix())
	if reason != "" {
		query = query.Set("notes", reason)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	result, err := s.GetMaster(ctx).Exec(queryString, args...)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("session %s no longer belongs to agent %s", sessionID, fromAgentID)
	}
	return nil
}

func (s *ChatSessionStore) Delete(ctx context.Context, sessionID string) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"session_id": sessionID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *ChatSessionStore) ListWaitingByAgent(ctx context.Context, agentID string, limit uint64) ([]types.ChatSession, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"status": types.CHAT_SESSION_STATUS_WAITING, "customer_service_id": agentID}).
		OrderBy("created_at DESC").Limit(limit)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.ChatSession
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ChatSessionStore) List(ctx context.Context, opts types.ListChatSessionOptions, page, pageSize uint64) ([]types.ChatSession, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).OrderBy("created_at DESC")
	opts.Apply(&query)

	if page != types.NO_PAGING || pageSize != types.NO_PAGINATION {
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.ChatSession
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ChatSessionStore) Total(ctx context.Context, opts types.ListChatSessionOptions) (int64, error) {
	query := sq.Select("COUNT(*)").From(s.GetTable())
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}

	var total int64
	if err = s.GetReplica(ctx).Get(&total, queryString, args...); err != nil {
		return 0, err
	}
	return total, nil
}
