package errors

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_014"
)

// Sentinel codes outside the numbered ranges.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Case Module Error Codes
const (
	ErrCodeCaseNotFound       ErrorCode = "CASE_001"
	ErrCodeMalformedInput     ErrorCode = "CASE_002"
	ErrCodeInvariantViolation ErrorCode = "CASE_003"
	ErrCodeLockNotAcquired    ErrorCode = "CASE_004"
	ErrCodeStaleBidEvent      ErrorCode = "CASE_005"
)

// Discrepancy Module Error Codes
const (
	ErrCodeDiscrepancyNotFound ErrorCode = "DISC_001"
)

// ErrorCodeMessage holds the default operator-facing text per code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:            "internal error",
	ErrCodeBadRequest:          "bad request",
	ErrCodeNotFound:            "resource not found",
	ErrCodeConflict:            "conflicting state",
	ErrCodeServiceUnavailable:  "service unavailable",
	ErrCodeTimeout:             "operation timed out",
	ErrCodeValidation:          "validation failed",
	ErrCodeSerialization:       "serialization failed",
	ErrCodeDatabaseError:       "database error",
	ErrCodeCacheError:          "cache error",
	ErrCodeMessageQueueError:   "message queue error",
	ErrCodeCaseNotFound:        "case not found",
	ErrCodeMalformedInput:      "malformed input",
	ErrCodeInvariantViolation:  "invariant violation",
	ErrCodeLockNotAcquired:     "case is locked by another writer",
	ErrCodeStaleBidEvent:       "bid event older than ledger state",
	ErrCodeDiscrepancyNotFound: "discrepancy not found",
}

// ErrorCodeExitStatus maps codes to process exit statuses used by the CLI.
// Codes absent from the map exit with 1.
var ErrorCodeExitStatus = map[ErrorCode]int{
	ErrCodeBadRequest:          2,
	ErrCodeValidation:          2,
	ErrCodeMalformedInput:      2,
	ErrCodeNotFound:            3,
	ErrCodeCaseNotFound:        3,
	ErrCodeDiscrepancyNotFound: 3,
	ErrCodeInvariantViolation:  4,
	ErrCodeConflict:            4,
	ErrCodeLockNotAcquired:     5,
	ErrCodeServiceUnavailable:  5,
	ErrCodeTimeout:             5,
}

// Message returns the default text for c, or the code itself if unmapped.
func (c ErrorCode) Message() string {
	if m, ok := ErrorCodeMessage[c]; ok {
		return m
	}
	return string(c)
}

// ExitStatus returns the CLI exit status for err. A nil error yields 0.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	if s, ok := ErrorCodeExitStatus[GetCode(err)]; ok {
		return s
	}
	return 1
}
