package mailparse

import (
	"strings"
)

// DecodeHeader decodes every RFC 2047 encoded-word of a header value with its declared charset.
// Malformed words are kept literally and undecodable bytes become U+FFFD; it never fails.
func (p *Parser) DecodeHeader(raw string) string {
	if raw == "" {
		return ""
	}
	decoded, err := p.words.DecodeHeader(raw)
	if err != nil {
		decoded = raw
	}
	return p.text.SanitizeUTF8(decoded)
}

// senderAddress extracts the bare address of a From header
func (p *Parser) senderAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if addr, err := p.addresses.Parse(raw); err == nil {
		return addr.Address
	}
	if list, err := p.addresses.ParseList(raw); err == nil && len(list) > 0 {
		return list[0].Address
	}
	return looseAddress(raw)
}

// addressList extracts the bare addresses of a To or Cc header in header order.
// The result is never nil.
func (p *Parser) addressList(raw string) []string {
	addresses := []string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return addresses
	}

	if list, err := p.addresses.ParseList(raw); err == nil {
		for _, addr := range list {
			if addr.Address != "" {
				addresses = append(addresses, addr.Address)
			}
		}
		return addresses
	}

	// One malformed entry must not hide the others
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if addr, err := p.addresses.Parse(token); err == nil {
			addresses = append(addresses, addr.Address)
		} else if loose := looseAddress(token); loose != "" {
			addresses = append(addresses, loose)
		}
	}
	return addresses
}

// looseAddress recovers an address from a value net/mail refuses,
// such as "Name <user@host" or a bare address with stray characters.
func looseAddress(raw string) string {
	if start := strings.LastIndex(raw, "<"); start >= 0 {
		candidate := raw[start+1:]
		if end := strings.Index(candidate, ">"); end >= 0 {
			candidate = candidate[:end]
		}
		candidate = strings.TrimSpace(candidate)
		if strings.Contains(candidate, "@") && !strings.ContainsAny(candidate, " \t") {
			return candidate
		}
	}
	for _, field := range strings.Fields(raw) {
		field = strings.Trim(field, `<>"',;()`)
		if strings.Count(field, "@") == 1 && !strings.HasPrefix(field, "@") && !strings.HasSuffix(field, "@") {
			return field
		}
	}
	return ""
}
