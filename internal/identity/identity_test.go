package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eniz1806/SyncPad/internal/config"
)

func TestPassthrough_AcceptsClaim(t *testing.T) {
	id, err := Passthrough{}.Authenticate(JoinRequest{
		UserID:   "user-1",
		UserName: "Ada",
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.UserID != "user-1" || id.UserName != "Ada" || id.IsAdmin {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestStatic_AllowsListedUser(t *testing.T) {
	p := NewStatic([]config.StaticUser{
		{ID: "ada", Name: "Ada Lovelace", Admin: true},
	})

	id, err := p.Authenticate(JoinRequest{UserID: "ada", UserName: "whatever"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.UserName != "Ada Lovelace" {
		t.Errorf("expected configured name to win, got %q", id.UserName)
	}
	if !id.IsAdmin {
		t.Error("expected admin flag")
	}
}

func TestStatic_DeniesUnknownUser(t *testing.T) {
	p := NewStatic([]config.StaticUser{{ID: "ada"}})

	_, err := p.Authenticate(JoinRequest{UserID: "mallory"})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestWebhook_Allows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"allow": true, "user_name": "Ada L", "admin": true}`))
	}))
	defer server.Close()

	p := NewWebhook(config.WebhookAuthConfig{URL: server.URL})
	id, err := p.Authenticate(JoinRequest{UserID: "ada", UserName: "Ada", DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.UserName != "Ada L" || !id.IsAdmin {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestWebhook_DeniesWithReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"allow": false, "reason": "banned"}`))
	}))
	defer server.Close()

	p := NewWebhook(config.WebhookAuthConfig{URL: server.URL})
	_, err := p.Authenticate(JoinRequest{UserID: "mallory"})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestWebhook_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewWebhook(config.WebhookAuthConfig{URL: server.URL})
	_, err := p.Authenticate(JoinRequest{UserID: "ada"})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if errors.Is(err, ErrDenied) {
		t.Error("webhook failure should not read as a deny decision")
	}
}

func TestNew_SelectsProvider(t *testing.T) {
	if _, ok := mustProvider(t, config.AuthConfig{}).(Passthrough); !ok {
		t.Error("expected passthrough default")
	}
	if _, ok := mustProvider(t, config.AuthConfig{
		Mode:  "static",
		Users: []config.StaticUser{{ID: "ada"}},
	}).(*Static); !ok {
		t.Error("expected static provider")
	}
	if _, ok := mustProvider(t, config.AuthConfig{
		Mode:    "webhook",
		Webhook: config.WebhookAuthConfig{URL: "http://auth.local"},
	}).(*Webhook); !ok {
		t.Error("expected webhook provider")
	}
	if _, ok := mustProvider(t, config.AuthConfig{
		Mode: "ldap",
		LDAP: config.LDAPAuthConfig{ServerURL: "ldap://directory:389"},
	}).(*LDAP); !ok {
		t.Error("expected ldap provider")
	}
}

func TestNew_UnknownMode(t *testing.T) {
	if _, err := New(config.AuthConfig{Mode: "oauth"}); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func mustProvider(t *testing.T, cfg config.AuthConfig) Provider {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}
