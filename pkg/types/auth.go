package types

// UserTokenMeta is the cached identity behind an issued token. Kept in redis
// so websocket upgrades can authenticate without hitting the database.
type UserTokenMeta struct {
	UserID    string         `json:"user_id"`
	Username  string         `json:"username"`
	Role      ConnectionRole `json:"role"`
	ExpireAt  int64          `json:"expire_at"`
	CreatedAt int64          `json:"created_at"`
}
