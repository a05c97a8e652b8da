package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// New / Wrap
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal", errors.ErrCodeInternal, "unexpected failure"},
		{"case not found", errors.ErrCodeCaseNotFound, "case 24CVS001234 not found"},
		{"invariant", errors.ErrCodeInvariantViolation, "bid amount must be positive"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)
			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.Contains(t, ae.Stack, "errors_test.go")
		})
	}
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeMalformedInput, "unparsable event date")
	assert.Equal(t, "[CASE_002] unparsable event date", ae.Error())

	withDetail := ae.WithDetail("raw=13/45/2025")
	assert.Equal(t, "[CASE_002] unparsable event date: raw=13/45/2025", withDetail.Error())
	assert.Empty(t, ae.Detail, "WithDetail must not mutate the receiver")
}

func TestWrap_NilReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, errors.Wrap(nil, errors.ErrCodeDatabaseError, "query failed"))
	assert.Nil(t, errors.Wrapf(nil, errors.ErrCodeDatabaseError, "query %d failed", 1))
}

func TestWrap_PreservesChain(t *testing.T) {
	t.Parallel()

	root := stderrors.New("connection reset")
	err := errors.Wrap(root, errors.ErrCodeDatabaseError, "failed to load case")

	assert.True(t, stderrors.Is(err, root))
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWrap_UnknownKeepsOriginalCode(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeCaseNotFound, "missing")
	outer := errors.Wrap(inner, errors.CodeUnknown, "refresh failed")
	assert.Equal(t, errors.ErrCodeCaseNotFound, errors.GetCode(outer))
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain inspection
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode_ThroughForeignWrapper(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeLockNotAcquired, "busy")
	wrapped := fmt.Errorf("refresh: %w", errors.Wrap(inner, errors.ErrCodeInternal, "orchestration"))

	assert.True(t, errors.IsCode(wrapped, errors.ErrCodeInternal))
	assert.True(t, errors.IsCode(wrapped, errors.ErrCodeLockNotAcquired))
	assert.False(t, errors.IsCode(wrapped, errors.ErrCodeCaseNotFound))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeInternal))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsNotFound(errors.NotFound("x")))
	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeCaseNotFound, "x")))
	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeDiscrepancyNotFound, "x")))
	assert.False(t, errors.IsNotFound(errors.Internal("x")))
	assert.False(t, errors.IsNotFound(stderrors.New("plain")))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeInvariantViolation, errors.GetCode(errors.InvariantViolation("x")))
}

func TestIs_MatchesSentinelAfterDetail(t *testing.T) {
	t.Parallel()

	sentinel := errors.New(errors.ErrCodeInvariantViolation, "classification not in enumeration")
	derived := sentinel.WithDetail("value=42")

	assert.True(t, errors.Is(derived, sentinel))
	assert.False(t, errors.Is(errors.InvariantViolation("other message"), sentinel))
}

func TestExitStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, errors.ExitStatus(nil))
	assert.Equal(t, 2, errors.ExitStatus(errors.MalformedInput("bad date")))
	assert.Equal(t, 3, errors.ExitStatus(errors.New(errors.ErrCodeCaseNotFound, "x")))
	assert.Equal(t, 4, errors.ExitStatus(errors.InvariantViolation("x")))
	assert.Equal(t, 1, errors.ExitStatus(stderrors.New("plain")))
}

func TestErrorCode_Message(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "case not found", errors.ErrCodeCaseNotFound.Message())
	assert.Equal(t, "NOPE_999", errors.ErrorCode("NOPE_999").Message())
}
