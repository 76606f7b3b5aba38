package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultEmailDomain is appended to derived module lead addresses.
const DefaultEmailDomain = "ames.edu.eu"

// bcrypt ignores input beyond this many bytes and newer versions reject it.
const maxBcryptInput = 72

// UserFactory synthesises module lead accounts for names that have no
// existing user. Zero values fall back to defaults.
type UserFactory struct {
	Domain   string           // Email domain (default: DefaultEmailDomain)
	NewID    func() uuid.UUID // Identity generator (default: uuid.New)
	HashCost int              // bcrypt cost (default: bcrypt.MinCost)
}

// NewLead builds a module lead record for username. The identity is assigned
// here so module records can reference it before anything is stored.
func (f *UserFactory) NewLead(username string) (UserRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return UserRecord{}, fmt.Errorf("empty module lead name")
	}

	hash, err := placeholderHash(NormalizeUsername(username), f.hashCost())
	if err != nil {
		return UserRecord{}, fmt.Errorf("placeholder credential for %q: %w", username, err)
	}

	return UserRecord{
		ID:              f.newID(),
		Username:        username,
		Email:           DeriveEmail(username, f.domain()),
		PasswordHash:    hash,
		Role:            RoleModuleLead,
		IsActive:        true,
		NeedsCredential: true,
	}, nil
}

func (f *UserFactory) domain() string {
	if f == nil || f.Domain == "" {
		return DefaultEmailDomain
	}
	return f.Domain
}

func (f *UserFactory) newID() uuid.UUID {
	if f == nil || f.NewID == nil {
		return uuid.New()
	}
	return f.NewID()
}

func (f *UserFactory) hashCost() int {
	if f == nil || f.HashCost == 0 {
		return bcrypt.MinCost
	}
	return f.HashCost
}

// NormalizeUsername lowercases a display name and removes all whitespace.
// "Jane Doe" becomes "janedoe".
func NormalizeUsername(username string) string {
	lower := cases.Lower(language.Und).String(username)
	return strings.Join(strings.Fields(lower), "")
}

// DeriveEmail returns the deterministic address for a module lead.
func DeriveEmail(username, domain string) string {
	if domain == "" {
		domain = DefaultEmailDomain
	}
	return NormalizeUsername(username) + "@" + strings.TrimPrefix(domain, "@")
}

func placeholderHash(secret string, cost int) (string, error) {
	b := []byte(secret)
	if len(b) > maxBcryptInput {
		b = b[:maxBcryptInput]
	}
	hash, err := bcrypt.GenerateFromPassword(b, cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
