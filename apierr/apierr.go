// Package apierr defines the gateway's stable error taxonomy. Every error a
// client can observe carries an E_* code with a fixed HTTP status; the codes
// are part of the public contract and never change meaning.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed API error. It renders as the standard envelope
// {code, message, params}.
type Error struct {
	Status  int           `json:"-"`
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Params  []interface{} `json:"params,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithParams returns a copy of e carrying params for message interpolation
// on the client side.
func (e *Error) WithParams(params ...interface{}) *Error {
	clone := *e
	clone.Params = params
	return &clone
}

// WithMessage returns a copy of e with a more specific human-readable
// message. The code and status are preserved.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

// New builds an error with an explicit status, code, and message. Used for
// passthrough of remote service errors.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// As extracts a typed API error from an error chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given E_* code.
func IsCode(err error, code string) bool {
	if apiErr, ok := As(err); ok {
		return apiErr.Code == code
	}
	return false
}

func def(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Authentication and session errors.
var (
	ErrLoginFailed           = def(http.StatusUnauthorized, "E_LOGIN_FAILED", "invalid username or password")
	ErrAuthorizationRequired = def(http.StatusUnauthorized, "E_AUTHORIZATION_REQUIRED", "authorization required")
	ErrSessionNotFound       = def(http.StatusUnauthorized, "E_SESSION_NOT_FOUND", "session not found")
	ErrDeviceCookieLockout   = def(http.StatusForbidden, "E_DEVICE_COOKIE_LOCKOUT", "too many failed login attempts")
	ErrAccessDenied          = def(http.StatusForbidden, "E_ACCESS_DENIED", "access denied")
	ErrAdminRequired         = def(http.StatusForbidden, "E_ADMIN_ACCOUNT_REQUIRED", "administrator account required")
	ErrSystemAdminRequired   = def(http.StatusForbidden, "E_SYSTEM_ADMIN_REQUIRED", "system administrator account required")
	ErrClientAccountRequired = def(http.StatusForbidden, "E_CLIENT_ACCOUNT_REQUIRED", "client account required")
)

// CSRF double-submit errors.
var (
	ErrCSRFTokenMissing      = def(http.StatusForbidden, "E_CSRF_TOKEN_MISSING", "csrf token missing")
	ErrCSRFTokenMismatch     = def(http.StatusForbidden, "E_CSRF_TOKEN_MISMATCH", "csrf token mismatch")
	ErrCSRFTokenInvalid      = def(http.StatusForbidden, "E_CSRF_TOKEN_INVALID", "csrf token invalid or expired")
	ErrCSRFTokenUserMismatch = def(http.StatusForbidden, "E_CSRF_TOKEN_USER_MISMATCH", "csrf token issued for another user")
)

// Not-found errors raised by the path dependency resolver.
var (
	ErrUserNotFound            = def(http.StatusNotFound, "E_USER_NOT_FOUND", "user not found")
	ErrProjectNotFound         = def(http.StatusNotFound, "E_PROJECT_NOT_FOUND", "project not found")
	ErrFuzzerNotFound          = def(http.StatusNotFound, "E_FUZZER_NOT_FOUND", "fuzzer not found")
	ErrRevisionNotFound        = def(http.StatusNotFound, "E_REVISION_NOT_FOUND", "revision not found")
	ErrPoolNotFound            = def(http.StatusNotFound, "E_POOL_NOT_FOUND", "pool not found")
	ErrImageNotFound           = def(http.StatusNotFound, "E_IMAGE_NOT_FOUND", "image not found")
	ErrEngineNotFound          = def(http.StatusNotFound, "E_ENGINE_NOT_FOUND", "engine not found")
	ErrLangNotFound            = def(http.StatusNotFound, "E_LANG_NOT_FOUND", "language not found")
	ErrIntegrationNotFound     = def(http.StatusNotFound, "E_INTEGRATION_NOT_FOUND", "integration not found")
	ErrIntegrationTypeNotFound = def(http.StatusNotFound, "E_INTEGRATION_TYPE_NOT_FOUND", "integration type not found")
	ErrSourceRevisionNotFound  = def(http.StatusNotFound, "E_SOURCE_REVISION_NOT_FOUND", "source revision not found")
	ErrTargetRevisionNotFound  = def(http.StatusNotFound, "E_TARGET_REVISION_NOT_FOUND", "target revision not found")
	ErrNoCorpusFound           = def(http.StatusNotFound, "E_NO_CORPUS_FOUND", "source revision has no corpus")
	ErrFileNotFound            = def(http.StatusNotFound, "E_FILE_NOT_FOUND", "file not found")
)

// Conflict errors: duplicates, soft-delete lockouts, wrong lifecycle state.
var (
	ErrUserExists              = def(http.StatusConflict, "E_USER_EXISTS", "user with this name already exists")
	ErrProjectExists           = def(http.StatusConflict, "E_PROJECT_EXISTS", "project with this name already exists")
	ErrFuzzerExists            = def(http.StatusConflict, "E_FUZZER_EXISTS", "fuzzer with this name already exists")
	ErrRevisionExists          = def(http.StatusConflict, "E_REVISION_EXISTS", "revision with this name already exists")
	ErrIntegrationExists       = def(http.StatusConflict, "E_INTEGRATION_EXISTS", "integration with this name already exists")
	ErrUserDeleted             = def(http.StatusConflict, "E_USER_DELETED", "user is in the trash bin")
	ErrProjectDeleted          = def(http.StatusConflict, "E_PROJECT_DELETED", "project is in the trash bin")
	ErrFuzzerDeleted           = def(http.StatusConflict, "E_FUZZER_DELETED", "fuzzer is in the trash bin")
	ErrRevisionDeleted         = def(http.StatusConflict, "E_REVISION_DELETED", "revision is in the trash bin")
	ErrIntegrationDeleted      = def(http.StatusConflict, "E_INTEGRATION_DELETED", "integration is in the trash bin")
	ErrRevisionAlreadyRunning  = def(http.StatusConflict, "E_REVISION_ALREADY_RUNNING", "revision is already running")
	ErrRevisionAlreadyActive   = def(http.StatusConflict, "E_REVISION_ALREADY_ACTIVE", "revision is already active")
	ErrRevisionCanOnlyRestart  = def(http.StatusConflict, "E_REVISION_CAN_ONLY_RESTART", "revision in error state can only be restarted")
	ErrWrongRevisionStatus     = def(http.StatusConflict, "E_WRONG_REVISION_STATUS", "operation not allowed in current revision status")
	ErrNoPoolToUse             = def(http.StatusConflict, "E_NO_POOL_TO_USE", "project has no pool assigned")
	ErrCopySourceTargetSame    = def(http.StatusConflict, "E_COPY_SOURCE_TARGET_SAME", "source and target revisions are the same")
	ErrCorpusOverwriteForbidden = def(http.StatusConflict, "E_CORPUS_OVERWRITE_FORBIDDEN", "target revision corpus can no longer change")
	ErrBinariesNotUploaded     = def(http.StatusConflict, "E_BINARIES_NOT_UPLOADED", "revision binaries are not uploaded")
	ErrImageNotReady           = def(http.StatusConflict, "E_IMAGE_NOT_READY", "image is not ready")
	ErrLangInUseBy             = def(http.StatusConflict, "E_LANG_IN_USE_BY", "language is referenced by fuzzers")
	ErrEngineInUseBy           = def(http.StatusConflict, "E_ENGINE_IN_USE_BY", "engine is referenced by fuzzers")
	ErrImageInUseBy            = def(http.StatusConflict, "E_IMAGE_IN_USE_BY", "image is referenced by revisions")
	ErrSystemUserProtected     = def(http.StatusConflict, "E_SYSTEM_USER_PROTECTED", "system user cannot be deleted")
	ErrSelfDeleteForbidden     = def(http.StatusConflict, "E_SELF_DELETE_FORBIDDEN", "cannot delete your own account")
	ErrConcurrentUpdate        = def(http.StatusConflict, "E_CONCURRENT_UPDATE", "document was modified concurrently")
)

// Validation errors.
var (
	ErrValidationFailed     = def(http.StatusUnprocessableEntity, "E_VALIDATION_FAILED", "request validation failed")
	ErrFileNotArchive       = def(http.StatusUnprocessableEntity, "E_FILE_NOT_ARCHIVE", "file is not a gzip tar archive")
	ErrJSONFileIsInvalid    = def(http.StatusUnprocessableEntity, "E_JSON_FILE_IS_INVALID", "file is not a valid json object")
	ErrWrongNodeGroup       = def(http.StatusUnprocessableEntity, "E_WRONG_NODE_GROUP", "node group not allowed on this platform")
	ErrResourceLimits       = def(http.StatusUnprocessableEntity, "E_RESOURCE_LIMITS_INVALID", "requested resources are out of bounds")
	ErrEngineNotInImage     = def(http.StatusUnprocessableEntity, "E_ENGINE_NOT_SUPPORTED_BY_IMAGE", "image does not ship this engine")
	ErrLangNotInEngine      = def(http.StatusUnprocessableEntity, "E_LANG_NOT_SUPPORTED_BY_ENGINE", "engine does not support this language")
	ErrUnknownEngineFamily  = def(http.StatusBadRequest, "E_UNKNOWN_ENGINE_FAMILY", "unknown engine family")
)

// Upload and internal errors.
var (
	ErrFileTooLarge  = def(http.StatusRequestEntityTooLarge, "E_FILE_TOO_LARGE", "uploaded file exceeds the size limit")
	ErrUploadFailure = def(http.StatusInternalServerError, "E_UPLOAD_FAILURE", "upload failed")
	ErrInternal      = def(http.StatusInternalServerError, "E_INTERNAL_ERROR", "internal error")
)
