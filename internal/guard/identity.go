package guard

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// UnknownClient is the shared identity assigned when no address can be
// resolved. Requests under it are rate limited as one conservative bucket
// rather than waved through.
const UnknownClient = "unknown"

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// IdentityResolver derives the client key for a request. Forwarding headers
// are honored only when the immediate peer is inside a trusted proxy range;
// otherwise the peer address itself is the identity, so untrusted clients
// cannot mint fresh buckets by forging headers.
type IdentityResolver struct {
	trusted []netip.Prefix
}

// NewIdentityResolver parses the trusted proxy CIDRs. A bare address is
// accepted as a single-host range.
func NewIdentityResolver(trustedProxies []string) (*IdentityResolver, error) {
	r := &IdentityResolver{}
	for _, c := range trustedProxies {
		p, err := parsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", c, err)
		}
		r.trusted = append(r.trusted, p)
	}
	return r, nil
}

// Resolve returns the client key for the request.
func (r *IdentityResolver) Resolve(req Request) string {
	peer, peerOK := parseHostAddr(req.RemoteAddr)
	if peerOK && r.isTrusted(peer) && req.Header != nil {
		if xff := req.Header.Get(headerForwardedFor); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := parseHostAddr(strings.TrimSpace(first)); ok {
				return ip.String()
			}
		}
		if real := strings.TrimSpace(req.Header.Get(headerRealIP)); real != "" {
			if ip, ok := parseHostAddr(real); ok {
				return ip.String()
			}
		}
	}
	if peerOK {
		return peer.String()
	}
	return UnknownClient
}

func (r *IdentityResolver) isTrusted(addr netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parseHostAddr parses an address that may carry a port, mapping IPv4-in-IPv6
// forms to their IPv4 representation so both spellings share one bucket.
func parseHostAddr(s string) (netip.Addr, bool) {
	if s == "" {
		return netip.Addr{}, false
	}
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()), nil
}

// allowRanges is the compiled allowlist. Separate from the resolver because
// it judges the resolved identity, not the peer.
type allowRanges []netip.Prefix

func parseAllowRanges(cidrs []string) (allowRanges, error) {
	var out allowRanges
	for _, c := range cidrs {
		p, err := parsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("allowlist entry %q: %w", c, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// contains reports whether the resolved client key falls inside any allowed
// range. Non-address keys (such as the shared unknown bucket) never match.
func (a allowRanges) contains(key string) bool {
	if len(a) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(key)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
