package homepulse

import (
	"errors"
	"fmt"
	"testing"
)

func TestFetchError(t *testing.T) {
	cause := errors.New("connection refused")
	err := newFetchError(FetchErrorTypeNetwork, "history request failed", "sensor.temp", 0, cause)

	if got := err.Error(); got != "history request failed [sensor.temp]: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrFetchFailed) {
		t.Error("FetchError must match ErrFetchFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("FetchError must unwrap to its cause")
	}

	var fe *FetchError
	wrapped := fmt.Errorf("fetching: %w", err)
	if !errors.As(wrapped, &fe) {
		t.Fatal("errors.As failed through wrapping")
	}
	if fe.Type != FetchErrorTypeNetwork || fe.EntityID != "sensor.temp" {
		t.Errorf("fetch error = %+v", fe)
	}

	bare := newFetchError(FetchErrorTypeAuth, "unauthorized", "sensor.temp", 401, nil)
	if got := bare.Error(); got != "unauthorized [sensor.temp]" {
		t.Errorf("Error() = %q", got)
	}
}

func TestStoreError(t *testing.T) {
	cause := errors.New("disk full")
	err := newStoreError(StoreErrorTypeSave, "write key", "latest_analysis", cause)
	if got := err.Error(); got != "write key [latest_analysis]: disk full" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("StoreError must unwrap to its cause")
	}

	keyless := newStoreError(StoreErrorTypeUnknown, "open sqlite store", "", nil)
	if got := keyless.Error(); got != "open sqlite store" {
		t.Errorf("Error() = %q", got)
	}
}
