package lazarus

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	TextCodeAccountDisabled        = "ACCOUNT_DISABLED"
	TextCodeTokenMalformed         = "TOKEN_MALFORMED"
	TextCodeTokenExpired           = "TOKEN_EXPIRED"
	TextCodeIdentityNotFound       = "IDENTITY_NOT_FOUND"
	TextCodeIncidentNotFound       = "INCIDENT_NOT_FOUND"
	TextCodeNotificationNotFound   = "NOTIFICATION_NOT_FOUND"
	TextCodeMediaNotFound          = "MEDIA_NOT_FOUND"
	TextCodeUnsupportedMedia       = "UNSUPPORTED_MEDIA"
	TextCodeForbidden              = "FORBIDDEN"
	TextCodeEmailTaken             = "EMAIL_TAKEN"
	TextCodeLegalIDTaken           = "LEGAL_ID_TAKEN"
	TextCodeInvalidResetToken      = "INVALID_OR_EXPIRED_RESET_TOKEN"
	TextCodeInvalidTransition      = "INVALID_INCIDENT_TRANSITION"
	TextCodeTerminalState          = "TERMINAL_INCIDENT_STATE"
	TextCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	TextCodeEmptyPatch             = "EMPTY_PATCH"
	TextCodeInvalidRole            = "INVALID_ROLE"
	TextCodeImmutableClaim         = "IMMUTABLE_CLAIM_MUTATION"
)

// ErrIdentityNotFound is returned for unknown id/role pairs
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidCredentials covers both unknown emails and password mismatches
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountDisabled is returned when the identity active flag is off
var ErrAccountDisabled = errors.New("account disabled", errors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed bad signature or payload
var ErrTokenMalformed = errors.New("invalid session token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired lapsed session token
var ErrTokenExpired = errors.New("session token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is a permission matrix violation
var ErrForbidden = errors.New("operation not allowed for this identity", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrEmailTaken email already registered in any identity collection
var ErrEmailTaken = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrLegalIDTaken citizen legal id number already registered
var ErrLegalIDTaken = errors.New("legal id number already registered", errors.CategoryConflict).
	WithTextCode(TextCodeLegalIDTaken).
	WithCode(errors.CodeConflict)

// ErrInvalidResetToken is returned for unknown, used or expired reset tokens
var ErrInvalidResetToken = errors.New("invalid or expired password reset token", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidResetToken).
	WithCode(errors.CodeBadRequest)

// ErrIncidentNotFound unknown incident id
var ErrIncidentNotFound = errors.New("incident not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIncidentNotFound).
	WithCode(errors.CodeNotFound)

// ErrNotificationNotFound unknown notification id
var ErrNotificationNotFound = errors.New("notification not found", errors.CategoryNotFound).
	WithTextCode(TextCodeNotificationNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = errors.New("invalid incident status transition", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(errors.CodeBadRequest)

// ErrTerminalState is returned when attempting to move away from a terminal status or an archived incident.
var ErrTerminalState = errors.New("incident state is terminal", errors.CategoryConflict).
	WithTextCode(TextCodeTerminalState).
	WithCode(errors.CodeConflict)

// ErrConcurrentModification the row changed between read and write
var ErrConcurrentModification = errors.New("incident was modified concurrently", errors.CategoryConflict).
	WithTextCode(TextCodeConcurrentModification).
	WithCode(errors.CodeConflict)

// ErrEmptyPatch update without any field
var ErrEmptyPatch = errors.New("update must change at least one field", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPatch).
	WithCode(errors.CodeBadRequest)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword internal marker, callers see ErrInvalidCredentials
var ErrMismatchedHashAndPassword = errors.New("password does not match hash", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidRole unknown role tag
var ErrInvalidRole = errors.New("unknown role tag", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRole).
	WithCode(errors.CodeBadRequest)

// ErrImmutableClaimMutation a claims decorator touched an identity claim
var ErrImmutableClaimMutation = errors.New("immutable claim mutated", errors.CategoryInternal).
	WithTextCode(TextCodeImmutableClaim).
	WithCode(errors.CodeInternal)

// ErrMediaNotFound unknown attachment id
var ErrMediaNotFound = errors.New("media not found", errors.CategoryNotFound).
	WithTextCode(TextCodeMediaNotFound).
	WithCode(errors.CodeNotFound)

// ErrUnsupportedMedia attachment type or size outside the accepted set
var ErrUnsupportedMedia = errors.New("unsupported media file", errors.CategoryBadInput).
	WithTextCode(TextCodeUnsupportedMedia).
	WithCode(errors.CodeBadRequest)

// ErrInvalidGrouping unsupported statistics column
var ErrInvalidGrouping = errors.New("unsupported grouping column", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// HasTextCode reports whether err carries the given text code
func HasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsNotFound unknown id, email or token
func IsNotFound(err error) bool {
	return hasCategory(err, errors.CategoryNotFound)
}

// IsUnauthorized bad credentials, disabled account or bad token
func IsUnauthorized(err error) bool {
	return hasCategory(err, errors.CategoryAuth)
}

// IsForbidden permission matrix violation
func IsForbidden(err error) bool {
	return hasCategory(err, errors.CategoryAuthz)
}

// IsConflict duplicates and concurrent writes
func IsConflict(err error) bool {
	return hasCategory(err, errors.CategoryConflict)
}

// IsValidation malformed input or used reset tokens
func IsValidation(err error) bool {
	return hasCategory(err, errors.CategoryValidation) || hasCategory(err, errors.CategoryBadInput)
}

func hasCategory(err error, category errors.Category) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == category
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// withMeta clones a sentinel so metadata never leaks between calls
func withMeta(base *errors.Error, meta map[string]any) *errors.Error {
	clone := base.Clone()
	clone.WithMetadata(meta)
	return clone
}
