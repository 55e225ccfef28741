package types

type ChatMessage struct {
	ID          string      `json:"id" db:"id"`
	SessionID   string      `json:"session_id" db:"session_id"`
	SenderType  SenderType  `json:"sender_type" db:"sender_type"`
	SenderID    string      `json:"sender_id" db:"sender_id"`
	SenderName  string      `json:"sender_name" db:"sender_name"`
	MessageType MessageType `json:"message_type" db:"message_type"`
	Content     string      `json:"content" db:"content"`
	FileURL     string      `json:"file_url" db:"file_url"`
	FileName    string      `json:"file_name" db:"file_name"`
	FileSize    int64       `json:"file_size" db:"file_size"`
	FileType    string      `json:"file_type" db:"file_type"`
	IsRead      bool        `json:"is_read" db:"is_read"`
	ReadAt      int64       `json:"read_at" db:"read_at"`
	CreatedAt   int64       `json:"created_at" db:"created_at"`
}

type SenderType string

const (
	SENDER_TYPE_AGENT   SenderType = "customer_service"
	SENDER_TYPE_USER    SenderType = "user"
	SENDER_TYPE_VISITOR SenderType = "visitor"
	SENDER_TYPE_SYSTEM  SenderType = "system"
)

type MessageType string

const (
	MESSAGE_TYPE_TEXT   MessageType = "text"
	MESSAGE_TYPE_IMAGE  MessageType = "image"
	MESSAGE_TYPE_FILE   MessageType = "file"
	MESSAGE_TYPE_EMOJI  MessageType = "emoji"
	MESSAGE_TYPE_SYSTEM MessageType = "system"
)

// FileMeta carries the attachment fields of image/file messages on the wire.
type FileMeta struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}
