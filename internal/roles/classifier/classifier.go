// Package classifier decides whether an email address carries domain-level
// site-master privilege.
package classifier

import (
	"strings"

	"sandoog/pkg/email"
)

// DefaultPrivilegedDomain is used when no domain is configured.
const DefaultPrivilegedDomain = "sandoog.com"

type Classification struct {
	PrivilegedDomain bool
}

// Classifier is a pure, total privilege rule. The zero value is not usable;
// construct with New.
type Classifier struct {
	domain string
}

func New(privilegedDomain string) Classifier {
	domain := strings.ToLower(strings.TrimSpace(privilegedDomain))
	if domain == "" {
		domain = DefaultPrivilegedDomain
	}
	return Classifier{domain: domain}
}

// Classify matches the address domain against the privileged domain,
// case-insensitively. Empty or malformed addresses are never privileged.
func (c Classifier) Classify(address string) Classification {
	return Classification{
		PrivilegedDomain: email.Domain(email.Normalize(address)) == c.domain,
	}
}
