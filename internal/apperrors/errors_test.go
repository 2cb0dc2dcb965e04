package apperrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mozilla-releng/balrogagent/internal/apperrors"
)

func TestIsTransportMatchesTransportAndStructural(t *testing.T) {
	transport := apperrors.NewTransportError("fetch", "rules", errors.New("timeout"))
	structural := apperrors.NewStructuralError("decode", "rules", errors.New("bad json"))
	predicate := apperrors.NewPredicateError("telemetry_is_ready", "", errors.New("unreachable"))

	assert.True(t, apperrors.IsTransport(transport))
	assert.True(t, apperrors.IsTransport(structural), "structural errors are treated as transport errors for the affected class")
	assert.False(t, apperrors.IsTransport(predicate))
}

func TestIsPredicate(t *testing.T) {
	err := apperrors.NewPredicateError("telemetry_is_ready", "", errors.New("unreachable"))
	assert.True(t, apperrors.IsPredicate(err))
	assert.False(t, apperrors.IsPredicate(apperrors.NewTransportError("op", "", errors.New("x"))))
}

func TestIsFatalConfig(t *testing.T) {
	err := apperrors.NewFatalConfigError("validate", errors.New("missing admin url"))
	assert.True(t, apperrors.IsFatalConfig(err))
	assert.False(t, apperrors.IsFatalConfig(apperrors.NewTransportError("op", "", errors.New("x"))))
}

func TestErrorMessageIncludesID(t *testing.T) {
	err := apperrors.NewTransportError("enact", "rules/4", errors.New("500"))
	assert.Contains(t, err.Error(), "rules/4")
	assert.Contains(t, err.Error(), "enact")
}

func TestUnwrapReachesSentinel(t *testing.T) {
	err := apperrors.NewStructuralError("decode", "", errors.New("eof"))
	assert.ErrorIs(t, err, apperrors.ErrStructural)
}
