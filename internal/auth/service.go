// Package auth issues session tokens for locally configured accounts
// and answers the role membership question the workflow stages gate
// on. Role membership comes from configured allow-lists unioned with
// directory-service groups.
package auth

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"gioland/internal/domain"
)

const (
	userEntryPrefix  = "user_id:"
	groupEntryPrefix = "ldap_group:"
)

// Config holds token signing parameters.
type Config struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// Claims is the JWT payload for a session token.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Service authenticates local accounts and evaluates role membership.
type Service struct {
	cfg      Config
	accounts map[string]domain.Account
	roles    map[domain.Role][]string
	dir      Directory
	cache    *groupCache
}

// NewService builds a Service. roles maps role names to membership
// entries of the form "user_id:<name>" or "ldap_group:<group>". dir
// may be nil when no directory service is configured.
func NewService(cfg Config, accounts []domain.Account, roles map[string][]string, dir Directory) *Service {
	acc := make(map[string]domain.Account, len(accounts))
	for _, a := range accounts {
		acc[a.Username] = a
	}
	rl := make(map[domain.Role][]string, len(roles))
	for name, entries := range roles {
		rl[domain.Role(name)] = entries
	}
	return &Service{
		cfg:      cfg,
		accounts: acc,
		roles:    rl,
		dir:      dir,
		cache:    newGroupCache(directoryCacheTTL),
	}
}

// Login verifies a local account password and returns a signed
// session token.
func (s *Service) Login(username, password string) (string, error) {
	account, ok := s.accounts[username]
	if !ok {
		return "", domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(
		[]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", domain.ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Expiry)),
		},
		Username: username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a session token.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.Secret), nil
		})
	if err != nil || !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Authorize reports whether userID holds any of the given roles.
// Anonymous actors are never authorized. Membership is the configured
// "user_id:" entries unioned with directory groups matched against
// "ldap_group:" entries; group lookups are cached with a short TTL.
func (s *Service) Authorize(ctx context.Context, userID string, roles ...domain.Role) bool {
	if userID == "" {
		return false
	}
	var groups []string
	groupsLoaded := false
	for _, role := range roles {
		for _, entry := range s.roles[role] {
			switch {
			case strings.HasPrefix(entry, userEntryPrefix):
				if strings.TrimPrefix(entry, userEntryPrefix) == userID {
					return true
				}
			case strings.HasPrefix(entry, groupEntryPrefix):
				if !groupsLoaded {
					groups = s.memberGroups(ctx, userID)
					groupsLoaded = true
				}
				want := strings.TrimPrefix(entry, groupEntryPrefix)
				for _, g := range groups {
					if g == want {
						return true
					}
				}
			}
		}
	}
	return false
}

func (s *Service) memberGroups(ctx context.Context, userID string) []string {
	if s.dir == nil {
		return nil
	}
	if groups, ok := s.cache.get(userID); ok {
		return groups
	}
	groups, err := s.dir.MemberGroups(ctx, userID)
	if err != nil {
		log.Printf("auth: directory lookup for %s failed: %v", userID, err)
		return nil
	}
	s.cache.set(userID, groups)
	return groups
}

// Account returns the configured account for userID.
func (s *Service) Account(userID string) (domain.Account, bool) {
	a, ok := s.accounts[userID]
	return a, ok
}

// DisplayName resolves a user id to its configured display name,
// falling back to the id itself.
func (s *Service) DisplayName(userID string) string {
	if a, ok := s.accounts[userID]; ok && a.DisplayName != "" {
		return a.DisplayName
	}
	return userID
}
