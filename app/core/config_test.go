package core_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatdesk/chatdesk/app/core"
)

func Test_ConfigDefaults(t *testing.T) {
	cfg := core.CoreConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, 60, cfg.Chat.WaitingPushIntervalSeconds)
	assert.Equal(t, uint64(50), cfg.Chat.WaitingPushLimit)
	assert.Equal(t, uint64(100), cfg.Chat.BacklogLimit)
	assert.Equal(t, uint64(10), cfg.Chat.ReconnectHistoryLimit)
	assert.Equal(t, 24, cfg.Security.TokenTTLHours)
}

func Test_ConfigDefaultsKeepExplicitValues(t *testing.T) {
	cfg := core.CoreConfig{}
	cfg.Chat.WaitingPushIntervalSeconds = 5
	cfg.Chat.BacklogLimit = 10
	cfg.ApplyDefaults()

	assert.Equal(t, 5, cfg.Chat.WaitingPushIntervalSeconds)
	assert.Equal(t, uint64(10), cfg.Chat.BacklogLimit)
}

func Test_LogLevel(t *testing.T) {
	l := core.Log{Level: "warn"}
	assert.Equal(t, slog.LevelWarn, l.SlogLevel())

	l.Level = "unknown"
	assert.Equal(t, slog.LevelDebug, l.SlogLevel())
}
