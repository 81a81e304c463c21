package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"verida.org/internal/ids"
)

const asset = "XLM"

type client struct {
	base string
	http *http.Client
}

func (c *client) call(ctx context.Context, method, path, token string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %v", method, path, resp.StatusCode, e["error"])
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) token(ctx context.Context, user string, roles ...string) string {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/auth/token", "", map[string]any{"user": user, "roles": roles}, &resp); err != nil {
		log.Fatalf("token for %s (is VERIDA_DEV_TOKENS enabled?): %v", user, err)
	}
	return resp.Token
}

func (c *client) balance(ctx context.Context, account string) json.Number {
	return c.amount(ctx, "/v1/assets/"+asset+"/accounts/"+account+"/balance")
}

func (c *client) custody(ctx context.Context, escrowID string) json.Number {
	return c.amount(ctx, "/v1/escrows/"+escrowID+"/custody")
}

func (c *client) amount(ctx context.Context, path string) json.Number {
	var resp struct {
		Amount json.Number `json:"amount"`
	}
	if err := c.call(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		log.Fatalf("GET %s: %v", path, err)
	}
	return resp.Amount
}

func main() {
	_ = godotenv.Load()
	base := os.Getenv("VERIDA_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 5 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	run := ids.New("")
	donor, recipient, validator := "GDONOR"+run, "GRECIPIENT"+run, "GVALIDATOR"+run

	ops := c.token(ctx, "smoke-operator", "admin")
	donorTok := c.token(ctx, donor)
	validatorTok := c.token(ctx, validator)
	recipientTok := c.token(ctx, recipient)

	if err := c.call(ctx, http.MethodPost, "/v1/assets/"+asset+"/mint", ops, map[string]any{"account": donor, "amount": 1000}, nil); err != nil {
		log.Fatalf("mint: %v", err)
	}

	var esc struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err := c.call(ctx, http.MethodPost, "/v1/escrows", donorTok, map[string]any{
		"recipient":     recipient,
		"validator":     validator,
		"amount":        1000,
		"asset":         asset,
		"conditions":    "smoke delivery",
		"timeout_hours": 24,
	}, &esc)
	if err != nil {
		log.Fatalf("create escrow: %v", err)
	}
	if got := c.balance(ctx, donor); got.String() != "0" {
		log.Fatalf("donor funds not locked: %s", got)
	}
	if got := c.custody(ctx, esc.ID); got.String() != "1000" {
		log.Fatalf("vault holds %s, want 1000", got)
	}

	if err := c.call(ctx, http.MethodPost, "/v1/escrows/"+esc.ID+"/validate", validatorTok, nil, nil); err != nil {
		log.Fatalf("validate: %v", err)
	}
	if err := c.call(ctx, http.MethodPost, "/v1/escrows/"+esc.ID+"/release", recipientTok, nil, &esc); err != nil {
		log.Fatalf("release: %v", err)
	}
	if esc.Status != "Released" {
		log.Fatalf("unexpected escrow status %s", esc.Status)
	}
	if got := c.balance(ctx, recipient); got.String() != "1000" {
		log.Fatalf("recipient not paid: %s", got)
	}
	if got := c.custody(ctx, esc.ID); got.String() != "0" {
		log.Fatalf("vault still holds %s", got)
	}

	fmt.Printf("✅ escrow smoke test passed: escrow=%s\n", esc.ID)
}
