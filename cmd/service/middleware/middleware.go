package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatdesk/chatdesk/app/core"
	v1 "github.com/chatdesk/chatdesk/app/logic/v1"
	"github.com/chatdesk/chatdesk/app/response"
	"github.com/chatdesk/chatdesk/pkg/auth"
	"github.com/chatdesk/chatdesk/pkg/errors"
	"github.com/chatdesk/chatdesk/pkg/i18n"
	"github.com/chatdesk/chatdesk/pkg/security"
)

const (
	AUTH_TOKEN_HEADER_KEY = "X-Authorization"

	TOKEN_CONTEXT_KEY = "token_claims"
)

func I18n() gin.HandlerFunc {
	var allowList []string
	for k := range i18n.ALLOW_LANG {
		allowList = append(allowList, k)
	}
	l := i18n.NewLocalizer(allowList...)

	return response.ProvideResponseLocalizer(l)
}

func Cors(c *gin.Context) {
	origin := c.Request.Header.Get("Origin")
	if origin != "" {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Header("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization, X-Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
	}
	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(http.StatusNoContent)
	}
	c.Next()
}

// Authorization verifies the login token from the header or the query string.
// With redis configured the token cache is consulted first, a miss falls back
// to plain JWT verification.
func Authorization(appCore *core.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenValue := c.GetHeader(AUTH_TOKEN_HEADER_KEY)
		if tokenValue == "" {
			tokenValue = c.Query("token")
		}
		if tokenValue == "" {
			response.APIError(c, errors.New("middleware.Authorization", i18n.ERROR_UNAUTHORIZED, nil).Code(http.StatusUnauthorized))
			return
		}

		claims, err := resolveToken(c, tokenValue, appCore)
		if err != nil {
			response.APIError(c, errors.Trace("middleware.Authorization", err))
			return
		}

		c.Set(TOKEN_CONTEXT_KEY, *claims)
		c.Set("user", claims.GetUser())
		c.Request = c.Request.WithContext(v1.InjectTokenClaim(c.Request.Context(), *claims))
	}
}

func resolveToken(c *gin.Context, tokenValue string, appCore *core.Core) (*security.TokenClaims, error) {
	if cache := appCore.Cache(); cache != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second*10)
		defer cancel()

		meta, err := auth.ValidateTokenFromCache(ctx, tokenValue, cache)
		if err == nil {
			claims := security.NewTokenClaims(meta.UserID, meta.Username, string(meta.Role), meta.ExpireAt)
			return &claims, nil
		}
	}

	claims, err := security.VerifyToken(tokenValue, []byte(appCore.Cfg().Security.JWTSecret))
	if err != nil {
		return nil, errors.New("middleware.resolveToken.VerifyToken", i18n.ERROR_INVALID_TOKEN, err).Code(http.StatusUnauthorized)
	}
	return claims, nil
}

// VerifyAgentRole restricts the route to agent identities. Runs behind
// Authorization.
func VerifyAgentRole(c *gin.Context) {
	claims := GetTokenClaims(c)
	if !claims.IsAgent() {
		response.APIError(c, errors.New("middleware.VerifyAgentRole", i18n.ERROR_AGENT_ROLE_REQUIRED, nil).Code(http.StatusForbidden))
	}
}

func GetTokenClaims(c *gin.Context) security.TokenClaims {
	claims, _ := c.Get(TOKEN_CONTEXT_KEY)
	tc, _ := claims.(security.TokenClaims)
	return tc
}

type LimiterFunc func(key string, opts ...core.LimitOption) gin.HandlerFunc

func UseLimit(appCore *core.Core, operation string, genKeyFunc func(c *gin.Context) string, opts ...core.LimitOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !appCore.UseLimiter(operation+":"+genKeyFunc(c), opts...).Allow() {
			response.APIError(c, errors.New("middleware.limiter", i18n.ERROR_TOO_MANY_REQUESTS, nil).Code(http.StatusTooManyRequests))
		}
	}
}
