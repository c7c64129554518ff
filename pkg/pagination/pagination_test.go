package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 30, 0, 123, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", out, in)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("empty cursor should be nil, got %v %v", c, err)
	}
	if _, err := ParseCursor("!!!"); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := ParseCursor("bm8tcGlwZQ"); err == nil {
		t.Fatal("expected format error")
	}
}

func TestTrim(t *testing.T) {
	rows := []int{1, 2, 3}
	page, more := Trim(rows, 2)
	if len(page) != 2 || !more {
		t.Fatalf("expected 2 rows with more, got %v %v", page, more)
	}
	page, more = Trim(rows, 5)
	if len(page) != 3 || more {
		t.Fatalf("expected all rows without more, got %v %v", page, more)
	}
	if NormalizeLimit(0) != DefaultLimit || NormalizeLimit(1000) != MaxLimit {
		t.Fatal("limit normalization broken")
	}
}
