package i18n_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatdesk/chatdesk/pkg/i18n"
)

func Test_LocalizerGet(t *testing.T) {
	l := i18n.NewLocalizer("en", "zh-CN")

	en := l.Get("en", i18n.ERROR_SESSION_NOT_FOUND)
	assert.NotEqual(t, i18n.ERROR_SESSION_NOT_FOUND, en)

	cn := l.Get("zh-CN", i18n.ERROR_SESSION_NOT_FOUND)
	assert.NotEqual(t, i18n.ERROR_SESSION_NOT_FOUND, cn)
	assert.NotEqual(t, en, cn)
}

func Test_LocalizerFallsBackToID(t *testing.T) {
	l := i18n.NewLocalizer("en")

	assert.Equal(t, "some.unknown.key", l.Get("en", "some.unknown.key"))
	// Unregistered language falls back to the message id as well.
	assert.Equal(t, i18n.ERROR_INTERNAL, l.Get("fr", i18n.ERROR_INTERNAL))
}
