package i18n

var ALLOW_LANG = map[string]bool{
	"en":    true,
	"zh-CN": true,
}

const DEFAULT_LANG = "en"

const (
	ERROR_INTERNAL          = "error.internal"
	ERROR_NOT_FOUND         = "error.notfound"
	ERROR_INVALIDARGUMENT   = "error.invalidargument"
	ERROR_PERMISSION_DENIED = "error.permission.denied"
	ERROR_UNAUTHORIZED      = "error.unauthorized"
	ERROR_FORBIDDEN         = "error.forbidden"
	ERROR_TOO_MANY_REQUESTS = "error.tooManyRequests"
	ERROR_INVALID_TOKEN     = "error.invalid.token"

	ERROR_SESSION_NOT_FOUND    = "error.chat.session.notfound"
	ERROR_AGENT_NOT_FOUND      = "error.chat.agent.notfound"
	ERROR_CAPACITY_EXCEEDED    = "error.chat.capacity.exceeded"
	ERROR_INVALID_STATE        = "error.chat.invalid.state"
	ERROR_INCONSISTENT         = "error.chat.inconsistent"
	ERROR_AGENT_NOT_AVAILABLE  = "error.chat.agent.unavailable"
	ERROR_AGENT_ROLE_REQUIRED  = "error.chat.agent.role.required"
	ERROR_USER_ROLE_REQUIRED   = "error.chat.user.role.required"
	ERROR_MESSAGE_NOT_FOUND    = "error.chat.message.notfound"
)
