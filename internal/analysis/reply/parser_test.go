package reply

import (
	"errors"
	"strings"
	"testing"
)

func TestParsePlainJSON(t *testing.T) {
	parsed, err := Parse(`{"transcription":"Ciao","analysis":"ok","response_italian":"Come stai?"}`)
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if parsed.Transcription != "Ciao" {
		t.Fatalf("unexpected transcription: %q", parsed.Transcription)
	}
	if parsed.Analysis != "ok" {
		t.Fatalf("unexpected analysis: %q", parsed.Analysis)
	}
	if parsed.ResponseItalian != "Come stai?" {
		t.Fatalf("unexpected response: %q", parsed.ResponseItalian)
	}
}

func TestParseFencedMatchesUnfenced(t *testing.T) {
	body := `{"transcription":"Ciao","analysis":"ok","response_italian":"Come stai?"}`

	cases := []struct {
		name string
		raw  string
	}{
		{"json fence", "```json\n" + body + "\n```"},
		{"fence without newline", "```json" + body + "```"},
		{"trailing fence only", body + "\n```"},
		{"surrounding whitespace", "  \n" + body + "\n  "},
	}

	want, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse plain err: %v", err)
	}

	for _, tc := range cases {
		got, err := Parse(tc.raw)
		if err != nil {
			t.Fatalf("%s: Parse err: %v", tc.name, err)
		}
		if got != want {
			t.Fatalf("%s: got %+v want %+v", tc.name, got, want)
		}
	}
}

func TestParseMissingKeysDefaultEmpty(t *testing.T) {
	parsed, err := Parse(`{"response_italian":"Va bene"}`)
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if parsed.Transcription != "" || parsed.Analysis != "" {
		t.Fatalf("expected empty defaults, got %+v", parsed)
	}
	if parsed.ResponseItalian != "Va bene" {
		t.Fatalf("unexpected response: %q", parsed.ResponseItalian)
	}
}

func TestParseEmptyReply(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\t"} {
		if _, err := Parse(raw); !errors.Is(err, ErrEmptyReply) {
			t.Fatalf("Parse(%q): expected ErrEmptyReply, got %v", raw, err)
		}
	}
}

func TestParseMalformedReply(t *testing.T) {
	cases := []string{
		"non sono JSON",
		`{"transcription": "Ciao"`,
		"```json\nancora non JSON\n```",
		`["transcription","analysis"]`,
	}

	for _, raw := range cases {
		if _, err := Parse(raw); !errors.Is(err, ErrMalformedReply) {
			t.Fatalf("Parse(%q): expected ErrMalformedReply, got %v", raw, err)
		}
	}
}

func TestUserTurnText(t *testing.T) {
	r := Reply{Transcription: "Ciao", Analysis: "ok"}
	text := r.UserTurnText()

	if !strings.Contains(text, "Ciao") || !strings.Contains(text, "ok") {
		t.Fatalf("user turn text missing fields: %q", text)
	}
	if !strings.HasPrefix(text, "**Transcription:**") {
		t.Fatalf("unexpected user turn format: %q", text)
	}
}
