package booking

import (
	"fmt"
	"strings"
)

// ParticipantsError reports addresses outside the organization. The user may
// resubmit with ProceedWithoutInvalid to continue with Accepted only.
type ParticipantsError struct {
	Accepted []string
	Rejected []string
}

func (e *ParticipantsError) Error() string {
	return fmt.Sprintf("participants outside the organization: %s", strings.Join(e.Rejected, ", "))
}

// NormalizeParticipants splits free-text input on commas, semicolons and line
// breaks. Bare local-parts get "@"+domain appended; only addresses in domain
// are accepted. Output is lower-cased and de-duplicated in input order.
func NormalizeParticipants(input, domain string) (accepted, rejected []string) {
	domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
	seen := make(map[string]bool)

	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
	for _, f := range fields {
		raw := strings.TrimSpace(f)
		if raw == "" {
			continue
		}
		addr := strings.ToLower(raw)
		if !strings.Contains(addr, "@") && domain != "" {
			addr += "@" + domain
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true

		if validOrgAddress(addr, domain) {
			accepted = append(accepted, addr)
		} else {
			rejected = append(rejected, raw)
		}
	}
	return accepted, rejected
}

func validOrgAddress(addr, domain string) bool {
	if domain == "" || strings.ContainsAny(addr, " \t") {
		return false
	}
	local, host, ok := strings.Cut(addr, "@")
	if !ok || local == "" || strings.Contains(host, "@") {
		return false
	}
	return host == domain
}
