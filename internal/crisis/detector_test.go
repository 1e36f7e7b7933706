package crisis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mindline/platform/pkg/logging"
)

func TestKeywordDetector(t *testing.T) {
	d := NewKeywordDetector()
	ctx := context.Background()

	tests := []struct {
		text         string
		wantLevel    string
		wantEscalate bool
	}{
		{"I just want to end my life", RiskSuicidal, true},
		{"I feel so WORTHLESS today", RiskDepressed, false},
		{"had a nice walk in the park", RiskNormal, false},
		{"Sometimes I wish I was dead", RiskSuicidal, true},
	}
	for _, tt := range tests {
		got, err := d.Assess(ctx, tt.text)
		if err != nil {
			t.Fatalf("assess(%q): %v", tt.text, err)
		}
		if got.RiskLevel != tt.wantLevel {
			t.Errorf("assess(%q) level = %q, want %q", tt.text, got.RiskLevel, tt.wantLevel)
		}
		if got.Escalate != tt.wantEscalate {
			t.Errorf("assess(%q) escalate = %v, want %v", tt.text, got.Escalate, tt.wantEscalate)
		}
	}
}

func TestServiceDetector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze-risk" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"risk_level":"Suicidal","confidence":0.95,"method":"model"}`))
	}))
	defer srv.Close()

	d := NewServiceDetector(srv.URL, time.Second, logging.New("error"))
	got, err := d.Assess(context.Background(), "anything")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if got.RiskLevel != RiskSuicidal || !got.Escalate {
		t.Errorf("got %+v, want suicidal escalation", got)
	}
}

func TestServiceDetectorFallsBack(t *testing.T) {
	// Unreachable service: keyword fallback must still classify.
	d := NewServiceDetector("http://127.0.0.1:1", 100*time.Millisecond, logging.New("error"))
	got, err := d.Assess(context.Background(), "I want to die")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if got.Method != "fallback" || !got.Escalate {
		t.Errorf("got %+v, want fallback escalation", got)
	}
}
