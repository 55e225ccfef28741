package types

const (
	NO_PAGING     uint64 = 0
	NO_PAGINATION uint64 = 0

	LANGUAGE_EN_KEY = "en"
	LANGUAGE_CN_KEY = "zh-CN"
)

// ConnectionRole is the identity class bound to a live connection after a
// successful login/identify event.
type ConnectionRole string

const (
	ROLE_USER    ConnectionRole = "user"
	ROLE_AGENT   ConnectionRole = "customer_service"
	ROLE_VISITOR ConnectionRole = "visitor"
)

const (
	// DEFAULT_BACKLOG_LIMIT bounds how many undelivered notifications are
	// replayed on a single identify.
	DEFAULT_BACKLOG_LIMIT uint64 = 100
	// DEFAULT_WAITING_LIMIT bounds one waiting-queue reconciliation query.
	DEFAULT_WAITING_LIMIT uint64 = 50
)
