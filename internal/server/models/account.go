// Package models holds the persisted records of the identity and
// entitlement subsystem.
package models

import "time"

// Provider names a supported federated identity provider.
type Provider string

const (
	ProviderApple  Provider = "apple"
	ProviderGoogle Provider = "google"
)

// Account is the identity record. Pointer fields are NULL-able columns.
type Account struct {
	ID                     string
	Email                  *string
	Name                   *string
	PasswordHash           *string
	AppleID                *string
	GoogleID               *string
	IsActive               bool
	EmailVerified          bool
	PasswordResetTokenHash *string
	PasswordResetExpiresAt *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ProviderID returns the identifier linked for p, if any.
func (a *Account) ProviderID(p Provider) *string {
	switch p {
	case ProviderApple:
		return a.AppleID
	case ProviderGoogle:
		return a.GoogleID
	}
	return nil
}

// SetProviderID links (or, with nil, unlinks) the identifier for p.
func (a *Account) SetProviderID(p Provider, id *string) {
	switch p {
	case ProviderApple:
		a.AppleID = id
	case ProviderGoogle:
		a.GoogleID = id
	}
}

// LoginMethods counts the usable ways to sign in: a password and each
// linked provider.
func (a *Account) LoginMethods() int {
	n := 0
	if a.PasswordHash != nil {
		n++
	}
	if a.AppleID != nil {
		n++
	}
	if a.GoogleID != nil {
		n++
	}
	return n
}

// Profile is the account view that leaves the service boundary. It never
// carries the password hash or reset token state.
type Profile struct {
	ID            string    `json:"id"`
	Email         *string   `json:"email"`
	Name          *string   `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	HasPassword   bool      `json:"hasPassword"`
	AppleLinked   bool      `json:"appleLinked"`
	GoogleLinked  bool      `json:"googleLinked"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Sanitize strips credentials from a.
func (a *Account) Sanitize() *Profile {
	return &Profile{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		EmailVerified: a.EmailVerified,
		HasPassword:   a.PasswordHash != nil,
		AppleLinked:   a.AppleID != nil,
		GoogleLinked:  a.GoogleID != nil,
		IsActive:      a.IsActive,
		CreatedAt:     a.CreatedAt,
	}
}
