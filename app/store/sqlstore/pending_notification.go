package sqlstore

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/chatdesk/chatdesk/pkg/register"
	"github.com/chatdesk/chatdesk/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.PendingNotificationStore = NewPendingNotificationStore(provider)
	})
}

type PendingNotificationStore struct {
	CommonFields
}

func NewPendingNotificationStore(provider SqlProviderAchieve) *PendingNotificationStore {
	repo := &PendingNotificationStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_PENDING_NOTIFICATION)
	repo.SetAllColumns("id", "event_type", "target_type", "target_id", "payload", "is_delivered", "delivered_at", "created_at")
	return repo
}

func (s *PendingNotificationStore) Create(ctx context.Context, data types.PendingNotification) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}

	query := sq.Insert(s.GetTable()).
		Columns("event_type", "target_type", "target_id", "payload", "is_delivered", "delivered_at", "created_at").
		Values(data.EventType, data.TargetType, data.TargetID, []byte(data.Payload), data.IsDelivered, data.DeliveredAt, data.CreatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *PendingNotificationStore) ListUndelivered(ctx context.Context, targetType types.NotifyTargetType, targetID string, limit uint64) ([]types.PendingNotification, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"target_type": targetType, "target_id": targetID, "is_delivered": false}).
		OrderBy("created_at ASC").Limit(limit)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.PendingNotification
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PendingNotificationStore) MarkDelivered(ctx context.Context, id int64) error {
	query := sq.Update(s.GetTable()).Where(sq.Eq{"id": id}).
		Set("is_delivered", true).
		Set("delivered_at", time.Now().Unix())

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}
