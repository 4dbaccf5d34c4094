package lease

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKindAndName(t *testing.T) {
	err := newError(KindLost, "checkout", "token-1", "lease expired", nil)
	sentinel := newError(KindLost, "", "", "", nil)
	assert.True(t, errors.Is(err, sentinel))

	wrongName := newError(KindLost, "billing", "", "", nil)
	assert.False(t, errors.Is(err, wrongName))

	wrongKind := newError(KindRenewal, "", "", "", nil)
	assert.False(t, errors.Is(err, wrongKind))
}

func TestIsKind_WalksWrappedErrors(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindProviderUnavailable, "checkout", "", "redis down", cause)
	assert.True(t, IsKind(err, KindProviderUnavailable))
	assert.False(t, IsKind(err, KindLost))
	assert.False(t, IsKind(cause, KindLost))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindRenewal, "checkout", "", "transient", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}
