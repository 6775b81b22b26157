package policy

import "testing"

func TestRequestedIn(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"Tell me about GO!2025", true},
		{"Tell me about GO! 2025", true},
		{"what about GoGorizia?", true},
		{"tell me about go!2025", false},
		{"Organize an event in Piazza Transalpina", false},
	}
	for _, tt := range tests {
		if got := RequestedIn(tt.query); got != tt.want {
			t.Errorf("RequestedIn(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestViolates(t *testing.T) {
	if !Violates("plan a concert", "During GO!2025 the square fills up") {
		t.Fatal("unsolicited mention must violate")
	}
	if Violates("plan a concert for GO!2025", "During GO!2025 the square fills up") {
		t.Fatal("requested mention must not violate")
	}
	if Violates("plan a concert", "The square fills up") {
		t.Fatal("no mention must not violate")
	}
	// the casual alias in a response is not policed
	if Violates("plan a concert", "see gogorizia.eu") {
		t.Fatal("alias alone in a response must not violate")
	}
}

func TestRedact(t *testing.T) {
	got := Redact("GO!2025 and GO! 2025 draw crowds")
	if MentionedIn(got) {
		t.Fatalf("redacted text still names the event: %q", got)
	}
	if got != "the event and the event draw crowds" {
		t.Fatalf("unexpected redaction: %q", got)
	}
}
