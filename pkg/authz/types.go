package authz

import (
	"strings"

	"github.com/google/uuid"
)

const (
	globalDomain     = "*"
	subjectUser      = "user"
	subjectSeparator = ":"
)

// Mode controls whether denials are enforced.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeShadow   Mode = "shadow"
	ModeEnforce  Mode = "enforce"
)

func sanitizeMode(m Mode) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(string(m)))) {
	case ModeDisabled:
		return ModeDisabled
	case ModeShadow:
		return ModeShadow
	default:
		return ModeEnforce
	}
}

// Request encapsulates all parameters required to evaluate a Casbin rule.
type Request struct {
	Subject string
	Domain  string
	Object  string
	Action  string
}

func NewRequest(subject, domain, object, action string) Request {
	return Request{
		Subject: subject,
		Domain:  domain,
		Object:  object,
		Action:  strings.ToLower(strings.TrimSpace(action)),
	}
}

// SubjectForUser builds a subject identifier in the form user:{userID}.
func SubjectForUser(userID uuid.UUID) string {
	userPart := "anonymous"
	if userID != uuid.Nil {
		userPart = userID.String()
	}
	return subjectUser + subjectSeparator + userPart
}

// DomainFromTenant converts a tenant ID into a casbin domain string.
func DomainFromTenant(tenantID uuid.UUID) string {
	if tenantID == uuid.Nil {
		return globalDomain
	}
	return tenantID.String()
}

// ScopeObject builds the object name for a scoped resource, e.g. legal_entity:{id}.
func ScopeObject(scopeType string, scopeID uuid.UUID) string {
	return strings.ToLower(strings.TrimSpace(scopeType)) + subjectSeparator + scopeID.String()
}
