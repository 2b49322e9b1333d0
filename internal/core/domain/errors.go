package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider or backend type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLLMUnavailable indicates the LLM service is not configured or unreachable.
	// Query optimisation and synthesis degrade to their fallbacks.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// The vector store cannot be searched or written without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorStoreUnavailable indicates the vector store could not be opened.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")

	// ErrCapabilityUnsupported indicates the vector store cannot perform an operation.
	ErrCapabilityUnsupported = errors.New("capability not supported by vector store")

	// ErrStoreBusy indicates an exclusive operation already holds the store.
	ErrStoreBusy = errors.New("store busy")

	// ErrAmbiguousBackup indicates a backup prefix matched more than one backup.
	ErrAmbiguousBackup = errors.New("ambiguous backup name")

	// ErrNoPendingPreview indicates forget was confirmed without a preview.
	ErrNoPendingPreview = errors.New("no pending forget preview")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// ErrorKind classifies a failure for reporting and recovery decisions.
type ErrorKind string

// Error kinds.
const (
	KindValidation ErrorKind = "ValidationError"
	KindDependency ErrorKind = "DependencyError"
	KindPermission ErrorKind = "PermissionError"
	KindStorage    ErrorKind = "StorageError"
	KindNetwork    ErrorKind = "NetworkError"
	KindUnknown    ErrorKind = "Unknown"
)

// AllErrorKinds returns every error kind.
func AllErrorKinds() []ErrorKind {
	return []ErrorKind{KindValidation, KindDependency, KindPermission, KindStorage, KindNetwork, KindUnknown}
}

// DefaultSuggestedAction returns the generic remedy for an error kind.
func (k ErrorKind) DefaultSuggestedAction() string {
	switch k {
	case KindValidation:
		return "Check the input and try again."
	case KindDependency:
		return "Check that the configured model provider is running and reachable."
	case KindPermission:
		return "Check file permissions on the recall data directories."
	case KindStorage:
		return "Check free disk space and that the data directories exist."
	case KindNetwork:
		return "Check the network connection and the provider URL."
	default:
		return "Run with --verbose for more detail."
	}
}

// Error is a classified failure carrying a user-facing remedy.
type Error struct {
	Kind            ErrorKind
	Component       string
	Op              string
	Err             error
	Recoverable     bool
	SuggestedAction string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Component != "" {
		msg += " in " + e.Component
	}
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error with the default remedy for its kind.
func NewError(kind ErrorKind, component, op string, err error) *Error {
	return &Error{
		Kind:            kind,
		Component:       component,
		Op:              op,
		Err:             err,
		SuggestedAction: kind.DefaultSuggestedAction(),
	}
}

// ValidationErrorf creates a ValidationError wrapping ErrInvalidInput.
func ValidationErrorf(component, format string, args ...any) *Error {
	return NewError(KindValidation, component, "", fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...))
}

// ErrorRecord is a reported failure kept for the error summary.
type ErrorRecord struct {
	ID              string    `json:"id"`
	Kind            ErrorKind `json:"kind"`
	Component       string    `json:"component"`
	Message         string    `json:"message"`
	Recoverable     bool      `json:"recoverable"`
	SuggestedAction string    `json:"suggested_action"`
	Timestamp       time.Time `json:"timestamp"`
}

// ErrorSummary aggregates recent error records.
type ErrorSummary struct {
	Total       int               `json:"total"`
	Recoverable int               `json:"recoverable"`
	ByKind      map[ErrorKind]int `json:"by_kind"`
	ByComponent map[string]int    `json:"by_component"`
	Recent      []ErrorRecord     `json:"recent"`
}
