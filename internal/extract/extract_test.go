package extract

import "testing"

func TestParseProbeDuration(t *testing.T) {
	out := []byte(`{"format": {"duration": "123.456000"}}`)
	got, err := parseProbeDuration(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123.456 {
		t.Fatalf("got %v, want 123.456", got)
	}
}

func TestParseProbeDurationMalformed(t *testing.T) {
	out := []byte(`{"format": {"duration": "not-a-number"}}`)
	if _, err := parseProbeDuration(out); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
