package identity

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/eniz1806/SyncPad/internal/config"
)

// LDAP admits users found in a directory. The websocket handshake
// carries no password, so this is a lookup: the service account binds,
// searches the claimed user id, and pulls the display name and admin
// group membership from the entry.
type LDAP struct {
	cfg config.LDAPAuthConfig
}

func NewLDAP(cfg config.LDAPAuthConfig) *LDAP {
	return &LDAP{cfg: cfg}
}

func (l *LDAP) Authenticate(req JoinRequest) (*Identity, error) {
	conn, err := l.connect()
	if err != nil {
		return nil, fmt.Errorf("ldap connect: %w", err)
	}
	defer conn.Close()

	if l.cfg.BindDN != "" {
		if err := conn.Bind(l.cfg.BindDN, l.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("ldap service bind: %w", err)
		}
	}

	filter := strings.ReplaceAll(l.cfg.UserFilter, "%s", ldap.EscapeFilter(req.UserID))
	attrs := []string{"dn"}
	if l.cfg.NameAttr != "" {
		attrs = append(attrs, l.cfg.NameAttr)
	}
	if l.cfg.GroupAttr != "" {
		attrs = append(attrs, l.cfg.GroupAttr)
	}

	sr, err := conn.Search(ldap.NewSearchRequest(
		l.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		filter,
		attrs,
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("ldap search: %w", err)
	}
	if len(sr.Entries) == 0 {
		return nil, fmt.Errorf("%w: user %q not in directory", ErrDenied, req.UserID)
	}
	entry := sr.Entries[0]

	name := req.UserName
	if l.cfg.NameAttr != "" {
		if v := entry.GetAttributeValue(l.cfg.NameAttr); v != "" {
			name = v
		}
	}

	admin := false
	if l.cfg.GroupAttr != "" && l.cfg.AdminGroup != "" {
		for _, g := range entry.GetAttributeValues(l.cfg.GroupAttr) {
			if g == l.cfg.AdminGroup {
				admin = true
				break
			}
		}
	}

	return &Identity{
		UserID:    req.UserID,
		UserName:  name,
		AvatarURL: req.AvatarURL,
		IsAdmin:   admin,
	}, nil
}

func (l *LDAP) connect() (*ldap.Conn, error) {
	if strings.HasPrefix(l.cfg.ServerURL, "ldaps://") {
		tlsCfg := &tls.Config{InsecureSkipVerify: l.cfg.TLSSkipVerify}
		return ldap.DialURL(l.cfg.ServerURL, ldap.DialWithTLSConfig(tlsCfg))
	}

	conn, err := ldap.DialURL(l.cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	if l.cfg.StartTLS {
		tlsCfg := &tls.Config{InsecureSkipVerify: l.cfg.TLSSkipVerify}
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}
