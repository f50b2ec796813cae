package domain

import (
	"strings"
)

// Role is the canonical role vocabulary of a local user.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleSupportAgent Role = "support_agent"
	RoleClient       Role = "client"
)

var roleAliases = map[string]Role{
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
	"support_agent": RoleSupportAgent,
	"agent_support": RoleSupportAgent,
	"agent-support": RoleSupportAgent,
	"agent support": RoleSupportAgent,
	"support-agent": RoleSupportAgent,
	"support agent": RoleSupportAgent,
	"support":       RoleSupportAgent,
	"agent":         RoleSupportAgent,
	"client":        RoleClient,
}

// NormalizeRole maps any incoming role string onto the canonical vocabulary.
// Unknown values are treated as client.
func NormalizeRole(s string) Role {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r
	}
	return RoleClient
}

// Identity is the local user asserted by the request layer.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role"`
}

// NewIdentity builds an Identity with a normalized email and role.
func NewIdentity(email, name, role string) Identity {
	return Identity{
		Email: strings.TrimSpace(email),
		Name:  strings.TrimSpace(name),
		Role:  NormalizeRole(role),
	}
}

// Key returns the draft and lock key for this identity.
func (i Identity) Key() string {
	return strings.ToLower(strings.TrimSpace(i.Email))
}

// DisplayName returns the name, falling back to the local part of the email.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	local, _, _ := strings.Cut(i.Email, "@")
	return local
}

// Validate checks that the identity can be reconciled remotely.
func (i Identity) Validate() error {
	email := strings.TrimSpace(i.Email)
	if email == "" {
		return NewError(KindInvalidRequest, "user email is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return NewError(KindInvalidRequest, "user email is malformed")
	}
	return nil
}

// SameEmail compares two emails case-insensitively.
func SameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
