package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/chatdesk/chatdesk/pkg/register"
	"github.com/chatdesk/chatdesk/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.CustomerServiceStore = NewCustomerServiceStore(provider)
	})
}

type CustomerServiceStore struct {
	CommonFields
}

func NewCustomerServiceStore(provider SqlProviderAchieve) *CustomerServiceStore {
	repo := &CustomerServiceStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_CUSTOMER_SERVICE)
	repo.SetAllColumns("id", "username", "email", "avatar", "status", "current_chats", "max_concurrent_chats", "created_at")
	return repo
}

func (s *CustomerServiceStore) Create(ctx context.Context, data types.CustomerService) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	if data.Status == "" {
		data.Status = types.AGENT_STATUS_OFFLINE
	}

	query := sq.Insert(s.GetTable()).
		Columns("id", "username", "email", "avatar", "status", "current_chats", "max_concurrent_chats", "created_at").
		Values(data.ID, data.Username, data.Email, data.Avatar, data.Status, data.CurrentChats, data.MaxConcurrentChats, data.CreatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *CustomerServiceStore) Get(ctx context.Context, id string) (*types.CustomerService, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.CustomerService
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

func (s *CustomerServiceStore) UpdateStatus(ctx context.Context, id string, status types.AgentStatus) error {
	query := sq.Update(s.GetTable()).Where(sq.Eq{"id": id}).Set("status", status)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// IncrCurrentChats adds one to the counter, refusing to cross the agent's
// capacity bound. The guard lives in SQL so concurrent accepts cannot both
// take the last slot.
func (s *CustomerServiceStore) IncrCurrentChats(ctx context.Context, id string) (bool, error) {
	query := sq.Update(s.GetTable()).
		Where(sq.Eq{"id": id}).
		Where(sq.Expr("current_chats < max_concurrent_chats")).
		Set("current_chats", sq.Expr("current_chats + 1"))

	queryString, args, err := query.ToSql()
	if err != nil {
		return false, ErrorSqlBuild(err)
	}

	result, err := s.GetMaster(ctx).Exec(queryString, args...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DecrCurrentChats subtracts one, floored at zero.
func (s *CustomerServiceStore) DecrCurrentChats(ctx context.Context, id string) error {
	query := sq.Update(s.GetTable()).
		Where(sq.Eq{"id": id}).
		Where(sq.Expr("current_chats > 0")).
		Set("current_chats", sq.Expr("current_chats - 1"))

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *CustomerServiceStore) List(ctx context.Context, page, pageSize uint64) ([]types.CustomerService, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).OrderBy("created_at ASC")

	if page != types.NO_PAGING || pageSize != types.NO_PAGINATION {
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.CustomerService
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}
