package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() resolve the client address from
// X-Real-IP / X-Forwarded-For, but only for connections arriving from one
// of the trusted CIDRs. Per-IP rate limits key on the result.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) error {
	trusted, err := parsePrefixes(trustedCIDRs)
	if err != nil {
		return err
	}
	e.IPExtractor = ipExtractor(trusted)
	return nil
}

func parsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// ipExtractor walks X-Forwarded-For from the right and returns the first
// hop that is not a trusted proxy, so a client cannot spoof its address by
// prepending entries.
func ipExtractor(trusted []netip.Prefix) echo.IPExtractor {
	isTrusted := func(addr netip.Addr) bool {
		addr = addr.Unmap()
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(req *http.Request) string {
		direct := remoteHost(req.RemoteAddr)
		addr, err := netip.ParseAddr(direct)
		if err != nil || !isTrusted(addr) {
			return direct
		}

		if xff := req.Header.Get(echo.HeaderXForwardedFor); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				a, err := netip.ParseAddr(hop)
				if err != nil {
					break
				}
				if !isTrusted(a) {
					return a.Unmap().String()
				}
			}
		}
		if realIP := strings.TrimSpace(req.Header.Get(echo.HeaderXRealIP)); realIP != "" {
			if a, err := netip.ParseAddr(realIP); err == nil {
				return a.Unmap().String()
			}
		}
		return direct
	}
}

// remoteHost strips the port from a "host:port" RemoteAddr.
func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
