package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chatdesk/chatdesk/pkg/security"
	"github.com/chatdesk/chatdesk/pkg/types"
)

var testSecret = []byte("test-secret")

func Test_TokenRoundTrip(t *testing.T) {
	claims := security.NewTokenClaims("u1", "neo", string(types.ROLE_USER), time.Now().Add(time.Hour).Unix())
	token, err := security.GenerateJWT(claims, testSecret)
	assert.NoError(t, err)

	parsed, err := security.VerifyToken(token, testSecret)
	assert.NoError(t, err)
	assert.Equal(t, "u1", parsed.GetUser())
	assert.Equal(t, "neo", parsed.Username)
	assert.False(t, parsed.IsAgent())
}

func Test_AgentRole(t *testing.T) {
	claims := security.NewTokenClaims("a1", "alice", string(types.ROLE_AGENT), time.Now().Add(time.Hour).Unix())
	token, err := security.GenerateJWT(claims, testSecret)
	assert.NoError(t, err)

	parsed, err := security.VerifyToken(token, testSecret)
	assert.NoError(t, err)
	assert.True(t, parsed.IsAgent())
}

func Test_ExpiredToken(t *testing.T) {
	claims := security.NewTokenClaims("u1", "neo", string(types.ROLE_USER), time.Now().Add(-time.Hour).Unix())
	token, err := security.GenerateJWT(claims, testSecret)
	assert.NoError(t, err)

	_, err = security.VerifyToken(token, testSecret)
	assert.ErrorIs(t, err, security.ErrInvalidJWT)
}

func Test_WrongSecret(t *testing.T) {
	claims := security.NewTokenClaims("u1", "neo", string(types.ROLE_USER), time.Now().Add(time.Hour).Unix())
	token, err := security.GenerateJWT(claims, testSecret)
	assert.NoError(t, err)

	_, err = security.VerifyToken(token, []byte("other-secret"))
	assert.Error(t, err)
}
