package rate

import (
	"fmt"
	"net"
	"strings"
)

// Allowlist holds trusted addresses that bypass rate limiting.
// Entries may be single IPs ("10.0.0.5") or CIDR blocks
// ("192.168.0.0/16"); both IPv4 and IPv6 forms are accepted.
type Allowlist struct {
	exact map[string]struct{}
	nets  []*net.IPNet
}

// NewAllowlist parses the entries. A malformed entry fails the whole
// list so a config typo cannot silently shrink the exemption.
func NewAllowlist(entries []string) (*Allowlist, error) {
	al := &Allowlist{exact: make(map[string]struct{})}
	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			_, ipNet, err := net.ParseCIDR(e)
			if err != nil {
				return nil, fmt.Errorf("rate: bad allowlist cidr %q: %w", e, err)
			}
			al.nets = append(al.nets, ipNet)
			continue
		}
		ip := net.ParseIP(e)
		if ip == nil {
			return nil, fmt.Errorf("rate: bad allowlist ip %q", e)
		}
		al.exact[ip.String()] = struct{}{}
	}
	return al, nil
}

// Contains reports whether addr matches an entry. Unparseable
// addresses are never exempt.
func (al *Allowlist) Contains(addr string) bool {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return false
	}
	if _, ok := al.exact[ip.String()]; ok {
		return true
	}
	for _, n := range al.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Len reports how many entries were loaded.
func (al *Allowlist) Len() int { return len(al.exact) + len(al.nets) }
