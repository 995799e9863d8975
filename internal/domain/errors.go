package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeNotReady      = "NOT_READY"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeLoader        = "LOADER_ERROR"
	ErrCodeEmbedding     = "EMBEDDING_BACKEND_ERROR"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodePersistence   = "PERSISTENCE_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation and configuration errors
var (
	ErrMissingEmbeddingModel = NewDomainError(ErrCodeConfiguration, "no embedding model selected")
	ErrInvalidChunkConfig    = NewDomainError(ErrCodeConfiguration, "chunk overlap must be smaller than chunk size")
	ErrUnknownProvider       = NewDomainError(ErrCodeConfiguration, "unknown embedding provider")
	ErrDimensionMismatch     = NewDomainError(ErrCodeConfiguration, "query embedding dimension does not match stored vectors")
)

// Not found errors
var (
	ErrKnowledgeNotFound = NewDomainError(ErrCodeNotFound, "knowledge base not found")
	ErrSourceNotFound    = NewDomainError(ErrCodeNotFound, "source not found")
)

// Lifecycle errors
var (
	ErrKnowledgeNotReady  = NewDomainError(ErrCodeNotReady, "knowledge base is not finished indexing")
	ErrProcessingInFlight = NewDomainError(ErrCodeConflict, "a processing run is already in flight for this knowledge base")
)

// NewLoaderError wraps a loader failure for one source.
func NewLoaderError(filename string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeLoader, fmt.Sprintf("failed to load source %q", filename), err)
}

// NewEmbeddingError wraps an embedding backend failure.
func NewEmbeddingError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, message, err)
}

// NewTimeoutError wraps a backend call that hit its deadline or was cancelled.
func NewTimeoutError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeTimeout, message, err)
}

// NewPersistenceError wraps a store read/write failure. Persistence errors
// are never swallowed; they risk divergence between status and vector data.
func NewPersistenceError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodePersistence, message, err)
}
