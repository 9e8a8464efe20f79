package identity

import (
	"errors"
	"fmt"

	"github.com/eniz1806/SyncPad/internal/config"
)

// Identity represents an authenticated collaborator.
type Identity struct {
	UserID    string
	UserName  string
	AvatarURL string
	IsAdmin   bool
}

// JoinRequest carries what a joining connection claims to be.
type JoinRequest struct {
	UserID     string
	UserName   string
	AvatarURL  string
	DocumentID string
	ClientIP   string
}

// ErrDenied marks a join refused by the identity provider.
var ErrDenied = errors.New("join denied")

// Provider decides whether a join is allowed and canonicalizes the
// claimed identity.
type Provider interface {
	Authenticate(req JoinRequest) (*Identity, error)
}

// New builds the provider selected by the auth config.
func New(cfg config.AuthConfig) (Provider, error) {
	switch cfg.Mode {
	case "", "passthrough":
		return Passthrough{}, nil
	case "static":
		return NewStatic(cfg.Users), nil
	case "webhook":
		return NewWebhook(cfg.Webhook), nil
	case "ldap":
		return NewLDAP(cfg.LDAP), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// Passthrough trusts whatever the client claims. Suitable behind a
// gateway that already authenticated the user.
type Passthrough struct{}

func (Passthrough) Authenticate(req JoinRequest) (*Identity, error) {
	return &Identity{
		UserID:    req.UserID,
		UserName:  req.UserName,
		AvatarURL: req.AvatarURL,
	}, nil
}

// Static admits only users from a fixed allowlist. The configured name
// wins over the claimed one.
type Static struct {
	users map[string]config.StaticUser
}

func NewStatic(users []config.StaticUser) *Static {
	m := make(map[string]config.StaticUser, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &Static{users: m}
}

func (s *Static) Authenticate(req JoinRequest) (*Identity, error) {
	u, ok := s.users[req.UserID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown user %q", ErrDenied, req.UserID)
	}
	name := u.Name
	if name == "" {
		name = req.UserName
	}
	return &Identity{
		UserID:    u.ID,
		UserName:  name,
		AvatarURL: req.AvatarURL,
		IsAdmin:   u.Admin,
	}, nil
}
