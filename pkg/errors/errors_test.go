package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatdesk/chatdesk/pkg/errors"
)

func Test_NewDefaultsToInternal(t *testing.T) {
	err := errors.New("Logic.Op.Step", "error.internal", fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, err.GetCode())
	assert.Equal(t, "error.internal", err.Message())
}

func Test_CodeOverride(t *testing.T) {
	err := errors.New("Logic.Op.Step", "error.notfound", nil).Code(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, err.GetCode())
}

func Test_TraceAppendsPath(t *testing.T) {
	err := errors.New("Logic.Op.Step", "error.internal", fmt.Errorf("boom")).Code(http.StatusConflict)
	traced := errors.Trace("Handler.Op", err)

	assert.Equal(t, http.StatusConflict, traced.GetCode())
	assert.Contains(t, traced.Error(), "Logic.Op.Step->Handler.Op")
}

func Test_TraceWrapsPlainError(t *testing.T) {
	traced := errors.Trace("Handler.Op", fmt.Errorf("plain failure"))
	assert.Contains(t, traced.Error(), "Handler.Op")
	assert.Equal(t, "plain failure", traced.Message())
}
