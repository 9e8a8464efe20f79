package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eniz1806/SyncPad/internal/config"
)

// Webhook asks an external endpoint for join decisions.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(cfg config.WebhookAuthConfig) *Webhook {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

// authRequest is sent to the auth webhook.
type authRequest struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	DocumentID string `json:"document_id"`
	ClientIP   string `json:"client_ip,omitempty"`
}

// authResponse is expected from the auth webhook.
type authResponse struct {
	Allow    bool   `json:"allow"`
	Reason   string `json:"reason,omitempty"`
	UserName string `json:"user_name,omitempty"` // optional canonical name
	Admin    bool   `json:"admin,omitempty"`
}

func (w *Webhook) Authenticate(req JoinRequest) (*Identity, error) {
	body, err := json.Marshal(authRequest{
		UserID:     req.UserID,
		UserName:   req.UserName,
		DocumentID: req.DocumentID,
		ClientIP:   req.ClientIP,
	})
	if err != nil {
		return nil, err
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("auth webhook error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth webhook returned %d", resp.StatusCode)
	}

	var decision authResponse
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return nil, fmt.Errorf("auth webhook invalid response: %w", err)
	}
	if !decision.Allow {
		if decision.Reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrDenied, decision.Reason)
		}
		return nil, ErrDenied
	}

	name := decision.UserName
	if name == "" {
		name = req.UserName
	}
	return &Identity{
		UserID:    req.UserID,
		UserName:  name,
		AvatarURL: req.AvatarURL,
		IsAdmin:   decision.Admin,
	}, nil
}
