package fetcher

import (
	"fmt"
	"net"
	"net/url"

	"content-pipeline/internal/domain/entity"
)

// validateURL applies the feed URL rules and, with denyPrivateIPs, resolves
// the host and refuses loopback, private, link-local and unspecified
// addresses. It runs again on every redirect hop.
func validateURL(raw string, denyPrivateIPs bool) error {
	if err := entity.ValidateFeedURL(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !denyPrivateIPs {
		return nil
	}

	u, _ := url.Parse(raw)
	host := u.Hostname()
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %v", ErrInvalidURL, host, err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateIP, host, ip)
		}
	}
	return nil
}
