package api

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents a resource not found error with contextual
// information. This standardized error type provides consistent error
// handling across all registry and repository operations.
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found
	// (e.g. "topic", "namespace", "hierarchy configuration", "connection")
	ResourceType string

	// ResourceName is the specific identifier of the resource
	ResourceName string

	// Message provides a custom error message if the default format is insufficient
	Message string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NewNotFoundError creates a new NotFoundError with the specified resource
// type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: resourceName,
	}
}

// Specific NotFoundError constructors for each resource type.
var (
	// NewTopicNotFoundError creates a topic not found error.
	NewTopicNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("topic", name)
	}

	// NewNamespaceNotFoundError creates a namespace not found error.
	NewNamespaceNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("namespace", name)
	}

	// NewHierarchyConfigNotFoundError creates a hierarchy configuration not found error.
	NewHierarchyConfigNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("hierarchy configuration", name)
	}

	// NewConnectionNotFoundError creates a connection not found error.
	NewConnectionNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("connection", name)
	}

	// NewInputNotFoundError creates an input configuration not found error.
	NewInputNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("input", name)
	}

	// NewOutputNotFoundError creates an output configuration not found error.
	NewOutputNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("output", name)
	}
)

// ValidationError represents a structurally invalid configuration or path.
// It aggregates one or more messages so callers can surface everything that
// is wrong in a single pass. Validation errors are never retried.
type ValidationError struct {
	// Subject names what was validated (e.g. "path", "hierarchy configuration").
	Subject string

	// Messages holds the individual validation failures.
	Messages []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Messages) == 1 {
		return fmt.Sprintf("invalid %s: %s", e.Subject, e.Messages[0])
	}
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Messages, "; "))
}

// IsValidation checks if an error is a ValidationError using error unwrapping.
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// NewValidationError creates a ValidationError for the given subject.
func NewValidationError(subject string, messages ...string) *ValidationError {
	return &ValidationError{Subject: subject, Messages: messages}
}

// TopicNotAllowedError indicates that a topic resolved to a placement whose
// deepest hierarchy level does not permit topics (allowTopics=false).
type TopicNotAllowedError struct {
	Topic string
	Path  string
	Level string
}

// Error implements the error interface for TopicNotAllowedError.
func (e *TopicNotAllowedError) Error() string {
	return fmt.Sprintf("topic %s not allowed at %s: level %s does not accept topics", e.Topic, e.Path, e.Level)
}

// IsTopicNotAllowed checks if an error is a TopicNotAllowedError.
func IsTopicNotAllowed(err error) bool {
	var notAllowed *TopicNotAllowedError
	return errors.As(err, &notAllowed)
}

// Common errors for core operations.
var (
	// ErrAlreadyExists indicates a uniqueness violation on registration.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNamespaceInUse indicates a namespace node still referenced by topics.
	ErrNamespaceInUse = errors.New("namespace is referenced by existing topics")

	// ErrNotConnected indicates an operation that requires a live transport.
	ErrNotConnected = errors.New("connection is not connected")

	// ErrQueueClosed indicates an enqueue after the processor was stopped.
	ErrQueueClosed = errors.New("queue processor is closed")
)
