package kelo

import (
	"errors"
	"testing"
)

func TestIoErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := &IoError{Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("IoError should unwrap to its cause")
	}
}

func TestInvalidKeyLenErrorMessage(t *testing.T) {
	err := &InvalidKeyLenError{Expected: 3, Got: 6}
	want := "kelo: invalid key length: expected 3, got 6"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
