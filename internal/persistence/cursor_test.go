package persistence

import (
	"testing"
	"time"

	"example.com/timetrack/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	original := &domain.Cursor{
		StartTime: time.Date(2026, time.March, 2, 9, 30, 0, 123456789, time.UTC),
		ID:        "entry-1",
	}

	token := EncodeCursor(original)
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	decoded, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decoded.StartTime.Equal(original.StartTime) || decoded.ID != original.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, original)
	}
}

func TestEncodeCursorNil(t *testing.T) {
	if token := EncodeCursor(nil); token != "" {
		t.Fatalf("expected empty token for nil cursor, got %q", token)
	}
}

func TestDecodeCursorEmpty(t *testing.T) {
	cursor, err := DecodeCursor("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cursor != nil {
		t.Fatalf("expected nil cursor, got %+v", cursor)
	}
}

func TestDecodeCursorInvalid(t *testing.T) {
	if _, err := DecodeCursor("not base64!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
	// Valid base64 but missing the separator.
	if _, err := DecodeCursor("bm8gc2VwYXJhdG9y"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}
