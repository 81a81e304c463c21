package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/communities/abc":                "/v1/communities/:id",
		"/v1/communities/abc/verify":         "/v1/communities/:id/verify",
		"/v1/communities":                    "/v1/communities",
		"/v1/escrows/01HX/release":           "/v1/escrows/:id/release",
		"/v1/donors/GABC/escrows":            "/v1/donors/:principal/escrows",
		"/v1/donations/d1/validations":       "/v1/donations/:id/validations",
		"/v1/assets/XLM/accounts/GA/balance": "/v1/assets/:asset/accounts/:account/balance",
		"/v1/contracts/escrow/initialize":    "/v1/contracts/:contract/initialize",
		"/v1/stats?window=1h":                "/v1/stats",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestLevelHelpersEmitJSON(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	Warn("publish failed", map[string]any{"event": "escrow_created"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "publish failed" || entry["event"] != "escrow_created" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
