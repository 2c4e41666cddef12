package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Identity ──────────────────────────────────────────────────────
	ErrUserRequired ErrCode = "USER_REQUIRED"
	ErrForbidden    ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation   ErrCode = "VALIDATION_ERROR"
	ErrInvalidID    ErrCode = "INVALID_ID"
	ErrInvalidInput ErrCode = "INVALID_INPUT"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound     ErrCode = "NOT_FOUND"
	ErrInvalidState ErrCode = "INVALID_STATE"

	// ─── Sessions ──────────────────────────────────────────────────────
	ErrActiveSessionExists ErrCode = "ACTIVE_SESSION_EXISTS"
	ErrSessionClosed       ErrCode = "SESSION_CLOSED"
	ErrResultsUnavailable  ErrCode = "RESULTS_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrUserRequired:
		return "A user identity is required."
	case ErrForbidden:
		return "You do not have access to this session."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidInput:
		return "The request could not be applied to this session."

	case ErrNotFound:
		return "Resource not found."
	case ErrInvalidState:
		return "The session is not in a state that allows this action."

	case ErrActiveSessionExists:
		return "An active session already exists for this exam."
	case ErrSessionClosed:
		return "The session is closed."
	case ErrResultsUnavailable:
		return "Results are available once the session is graded."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
