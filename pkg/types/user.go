package types

// User is the read-only profile record used to enrich waiting-queue pushes
// and session broadcasts. Account management lives outside this service.
type User struct {
	ID       string `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Email    string `json:"email" db:"email"`
	Avatar   string `json:"avatar" db:"avatar"`
}
