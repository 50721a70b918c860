package whitelist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker authorizes senders whose address belongs to one of the configured domains
type Checker struct {
	suffixes []string
	logger   *zap.Logger
}

// NewChecker creates a new domain checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	// Normalize domains to "@domain" suffixes (lowercase)
	suffixes := make([]string, 0, len(domains))
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		domain = strings.TrimPrefix(domain, "@")
		if domain == "" {
			continue
		}
		suffixes = append(suffixes, "@"+domain)
	}

	if len(suffixes) > 0 && logger != nil {
		logger.Info("Initialized domain checker", zap.Strings("suffixes", suffixes))
	}

	return &Checker{
		suffixes: suffixes,
		logger:   logger,
	}
}

// IsAuthorized reports whether the address ends with an authorized "@domain" suffix, ignoring case.
// Subdomains are not authorized: "a@x.example.com" does not match "example.com".
func (c *Checker) IsAuthorized(address string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return false
	}

	for _, suffix := range c.suffixes {
		if strings.HasSuffix(address, suffix) {
			return true
		}
	}

	if c.logger != nil {
		c.logger.Debug("Sender domain is not authorized", zap.String("email", address))
	}
	return false
}

// Domains returns the authorized domains without the leading "@"
func (c *Checker) Domains() []string {
	domains := make([]string, len(c.suffixes))
	for i, suffix := range c.suffixes {
		domains[i] = strings.TrimPrefix(suffix, "@")
	}
	return domains
}
