package strx

import (
	"testing"
	"time"
)

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "SK"); got != "SK" {
		t.Fatalf("Coalesce string = %q", got)
	}
	if got := Coalesce("DE", "SK"); got != "DE" {
		t.Fatalf("Coalesce keeps value = %q", got)
	}
	if got := Coalesce(time.Duration(0), 240*time.Millisecond); got != 240*time.Millisecond {
		t.Fatalf("Coalesce duration = %v", got)
	}
}

func TestFitsBytes(t *testing.T) {
	if !FitsBytes("abc", 3) || FitsBytes("abcd", 3) {
		t.Fatal("FitsBytes mismatch")
	}
	// "é" is two bytes.
	if FitsBytes("é", 1) {
		t.Fatal("FitsBytes must count bytes")
	}
}
