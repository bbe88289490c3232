package domain

import "testing"

func TestHRContactAcceptable(t *testing.T) {
	tests := []struct {
		name    string
		contact HRContact
		want    bool
	}{
		{"verified wins regardless of confidence", HRContact{Email: "hr@acme.com", Verified: true, Confidence: 0.1, Source: "hunter"}, true},
		{"confident non-fabricated source", HRContact{Email: "hr@acme.com", Confidence: 0.7, Source: "snov"}, true},
		{"exactly at threshold", HRContact{Email: "hr@acme.com", Confidence: 0.5, Source: "apollo"}, true},
		{"empty email never acceptable", HRContact{Email: "", Verified: true, Confidence: 1.0, Source: "hunter"}, false},
		{"guess source rejected", HRContact{Email: "hr@acme.com", Confidence: 0.9, Source: ContactSourceGuess}, false},
		{"llm source rejected", HRContact{Email: "hr@acme.com", Confidence: 0.9, Source: ContactSourceLLM}, false},
		{"constructed source rejected", HRContact{Email: "hr@acme.com", Confidence: 0.9, Source: ContactSourceConstructed}, false},
		{"low confidence unverified rejected", HRContact{Email: "hr@acme.com", Confidence: 0.2, Source: "hunter"}, false},
		{"verified guess still acceptable", HRContact{Email: "hr@acme.com", Verified: true, Source: ContactSourceGuess}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.contact.Acceptable(); got != tt.want {
				t.Errorf("Acceptable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHRContactStale(t *testing.T) {
	tests := []struct {
		name    string
		contact HRContact
		want    bool
	}{
		{"fresh verified contact", HRContact{Email: "hr@acme.com", Confidence: 0.9, Source: "hunter", Verified: true}, false},
		{"fresh confident contact", HRContact{Email: "hr@acme.com", Confidence: 0.6, Source: "snov"}, false},
		{"missing email", HRContact{Email: "", Confidence: 0.9, Source: "hunter"}, true},
		{"low confidence guess from aggregation", HRContact{Email: "hr@acme.com", Confidence: 0.2, Source: ContactSourceGuess}, true},
		{"llm source", HRContact{Email: "hr@acme.com", Confidence: 0.8, Source: ContactSourceLLM}, true},
		{"constructed source", HRContact{Email: "hr@acme.com", Confidence: 0.8, Source: ContactSourceConstructed}, true},
		{"not_found placeholder", HRContact{Email: "hr@acme.com", Confidence: 0.8, Source: ContactSourceNotFound}, true},
		{"confidence just below threshold", HRContact{Email: "hr@acme.com", Confidence: 0.49, Source: "hunter"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.contact.Stale(); got != tt.want {
				t.Errorf("Stale() = %v, want %v", got, tt.want)
			}
		})
	}
}
