package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"control chars stripped", "he\x00llo\nwo\x7frld\t!", "hello\nworld\t!"},
		{"bom and zero-width dropped", "\uFEFFJane\u200B Doe", "Jane Doe"},
		{"surrounding space trimmed", "  skills: go, sql  ", "skills: go, sql"},
		{"tabs and newlines kept", "a\tb\nc", "a\tb\nc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeText(tc.in); got != tc.want {
				t.Fatalf("SanitizeText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeNewlines(t *testing.T) {
	t.Parallel()
	in := "Experience\r\n\r\n\r\n\r\nBackend Engineer\rAcme"
	want := "Experience\n\nBackend Engineer\nAcme"
	if got := NormalizeNewlines(in); got != want {
		t.Fatalf("NormalizeNewlines = %q, want %q", got, want)
	}
}
