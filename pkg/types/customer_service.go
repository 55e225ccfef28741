package types

// CustomerService is a support agent with a bound on concurrent active sessions.
type CustomerService struct {
	ID                 string      `json:"id" db:"id"`
	Username           string      `json:"username" db:"username"`
	Email              string      `json:"email" db:"email"`
	Avatar             string      `json:"avatar" db:"avatar"`
	Status             AgentStatus `json:"status" db:"status"`
	CurrentChats       int         `json:"current_chats" db:"current_chats"`
	MaxConcurrentChats int         `json:"max_concurrent_chats" db:"max_concurrent_chats"`
	CreatedAt          int64       `json:"created_at" db:"created_at"`
}

type AgentStatus string

const (
	AGENT_STATUS_ONLINE  AgentStatus = "online"
	AGENT_STATUS_OFFLINE AgentStatus = "offline"
	AGENT_STATUS_BUSY    AgentStatus = "busy"
)

func (s AgentStatus) Valid() bool {
	switch s {
	case AGENT_STATUS_ONLINE, AGENT_STATUS_OFFLINE, AGENT_STATUS_BUSY:
		return true
	}
	return false
}

// AtCapacity reports whether the agent cannot take another active session.
func (c *CustomerService) AtCapacity() bool {
	return c.CurrentChats >= c.MaxConcurrentChats
}
