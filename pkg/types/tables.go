package types

import "fmt"

type TableName string

func (s TableName) Name() string {
	return fmt.Sprintf("%s%s", TABLE_PREFIX, s)
}

const TABLE_PREFIX = "chatdesk_"

const (
	TABLE_CHAT_SESSION         = TableName("chat_sessions")
	TABLE_CHAT_MESSAGE         = TableName("chat_messages")
	TABLE_CUSTOMER_SERVICE     = TableName("customer_services")
	TABLE_PENDING_NOTIFICATION = TableName("pending_notifications")
	TABLE_USER                 = TableName("users")
)
