package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewIDEncodesRandomUUID(t *testing.T) {
	got, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(got) != 26 {
		t.Fatalf("len = %d, want 26", len(got))
	}
	if got != strings.ToLower(got) {
		t.Fatalf("id %q is not lowercase", got)
	}

	raw, err := encoding.DecodeString(strings.ToUpper(got))
	if err != nil {
		t.Fatalf("decode %q: %v", got, err)
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		t.Fatalf("uuid from bytes: %v", err)
	}
	if u.Version() != 4 {
		t.Fatalf("version = %d, want 4", u.Version())
	}
	if u.Variant() != uuid.RFC4122 {
		t.Fatalf("variant = %v, want RFC4122", u.Variant())
	}
}

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		got, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if seen[got] {
			t.Fatalf("duplicate id %q", got)
		}
		seen[got] = true
	}
}
