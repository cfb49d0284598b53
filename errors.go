package homepulse

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the homepulse package.
var (
	// ErrClosed is returned when operations are attempted on a closed engine.
	ErrClosed = errors.New("engine is closed")

	// ErrAnalyticsDisabled is returned when analysis is requested while
	// analytics is disabled in the configuration.
	ErrAnalyticsDisabled = errors.New("analytics is disabled")

	// ErrFetchFailed is returned when a history fetch could not complete.
	ErrFetchFailed = errors.New("history fetch failed")

	// ErrUnknownEntity is returned when an entity is not present in the registry.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrSnapshotNotFound is returned when an archived snapshot does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// FetchErrorType categorizes history fetch errors.
type FetchErrorType int

const (
	// FetchErrorTypeUnknown is an unclassified fetch error.
	FetchErrorTypeUnknown FetchErrorType = iota
	// FetchErrorTypeNetwork indicates a transport-level failure.
	FetchErrorTypeNetwork
	// FetchErrorTypeAuth indicates the host rejected our credentials.
	FetchErrorTypeAuth
	// FetchErrorTypeServer indicates a 5xx response from the host.
	FetchErrorTypeServer
	// FetchErrorTypeDecode indicates an unparseable response body.
	FetchErrorTypeDecode
)

// FetchError provides detailed information about a failed history fetch.
type FetchError struct {
	Type       FetchErrorType
	EntityID   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Message, e.EntityID, e.Cause)
	}
	return fmt.Sprintf("%s [%s]", e.Message, e.EntityID)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// newFetchError creates a new FetchError.
func newFetchError(errType FetchErrorType, message, entityID string, status int, cause error) *FetchError {
	return &FetchError{
		Type:       errType,
		EntityID:   entityID,
		StatusCode: status,
		Message:    message,
		Cause:      cause,
	}
}

// StoreErrorType categorizes configuration-store errors.
type StoreErrorType int

const (
	// StoreErrorTypeUnknown is an unclassified store error.
	StoreErrorTypeUnknown StoreErrorType = iota
	// StoreErrorTypeLoad indicates a read failure.
	StoreErrorTypeLoad
	// StoreErrorTypeSave indicates a write failure.
	StoreErrorTypeSave
	// StoreErrorTypeEncode indicates a serialization failure.
	StoreErrorTypeEncode
)

// StoreError provides detailed information about configuration-store failures.
type StoreError struct {
	Type    StoreErrorType
	Key     string
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s [%s]: %v", e.Message, e.Key, e.Cause)
		}
		return fmt.Sprintf("%s [%s]", e.Message, e.Key)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// newStoreError creates a new StoreError.
func newStoreError(errType StoreErrorType, message, key string, cause error) *StoreError {
	return &StoreError{
		Type:    errType,
		Key:     key,
		Message: message,
		Cause:   cause,
	}
}
