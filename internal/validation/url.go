// Package validation guards the URLs and user input the CLI sends to an
// FME Flow server.
//
// Server URLs are checked against private IP ranges, cloud metadata
// endpoints and other destinations that could be abused for server-side
// request forgery. Two policies exist:
//   - ValidateServerURL: strict, used for the FME Flow server itself
//   - ValidateServiceURL: relaxed, allows loopback for a local geometry service
//
// Private ranges can be allowed with FMEFLOW_ALLOW_PRIVATE (any value
// strconv.ParseBool accepts) or SetAllowPrivate(true). Cloud metadata
// endpoints stay blocked either way.
package validation

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var allowPrivate atomic.Bool

var privateNetworks []*net.IPNet

// lookupIP resolves hostnames; replaced in tests.
var lookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
	return (&net.Resolver{}).LookupIP(ctx, "ip", host)
}

func init() {
	v, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("FMEFLOW_ALLOW_PRIVATE")))
	allowPrivate.Store(v)

	for _, cidr := range []string{
		"10.0.0.0/8",      // RFC1918
		"172.16.0.0/12",   // RFC1918
		"192.168.0.0/16",  // RFC1918
		"100.64.0.0/10",   // RFC6598 shared address space
		"169.254.0.0/16",  // RFC3927 link local
		"192.0.0.0/24",    // RFC6890
		"192.0.2.0/24",    // RFC5737 documentation
		"198.18.0.0/15",   // RFC2544 benchmarking
		"198.51.100.0/24", // RFC5737 documentation
		"203.0.113.0/24",  // RFC5737 documentation
		"240.0.0.0/4",     // reserved
		"fc00::/7",        // unique local
		"fe80::/10",       // link local
		"ff00::/8",        // multicast
		"::1/128",         // loopback
		"::/128",          // unspecified
		"100::/64",        // discard prefix
		"2001::/32",       // Teredo
		"2001:10::/28",    // ORCHID
		"2001:db8::/32",   // documentation
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// SetAllowPrivate permits private and localhost server URLs. Used for
// on-premises FME Flow installs and tests.
func SetAllowPrivate(enabled bool) {
	allowPrivate.Store(enabled)
}

// AllowPrivateEnabled reports whether private and localhost URLs are allowed.
func AllowPrivateEnabled() bool {
	return allowPrivate.Load()
}

// urlPolicy selects which destinations a validator accepts.
type urlPolicy struct {
	allowLoopback bool
	allowPrivate  bool
}

// ValidateServerURL checks an FME Flow server URL: http or https, a
// hostname, and no localhost, private or metadata destination unless
// private URLs are allowed. Hostnames are resolved and every address checked.
func ValidateServerURL(rawURL string) error {
	p := urlPolicy{allowPrivate: allowPrivate.Load()}
	p.allowLoopback = p.allowPrivate
	return validateURL(rawURL, p)
}

// ValidateServiceURL checks an auxiliary service URL such as an ArcGIS
// geometry service. Loopback is always allowed.
func ValidateServiceURL(rawURL string) error {
	return validateURL(rawURL, urlPolicy{allowLoopback: true, allowPrivate: allowPrivate.Load()})
}

func validateURL(rawURL string, p urlPolicy) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: only http and https are allowed, got %q", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL must contain a hostname")
	}
	if isCloudMetadata(host) {
		return fmt.Errorf("cloud metadata endpoints are not allowed")
	}
	if isLocalhost(host) {
		if !p.allowLoopback {
			return fmt.Errorf("localhost URLs are not allowed")
		}
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip, p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ips, err := lookupIP(ctx, host)
	if err != nil {
		// Unresolvable names are let through; the request itself will fail.
		return nil
	}
	for _, ip := range ips {
		if err := checkIP(ip, p); err != nil {
			return fmt.Errorf("domain %q resolves to forbidden IP %s: %w", host, ip, err)
		}
	}
	return nil
}

func checkIP(ip net.IP, p urlPolicy) error {
	if ip.Equal(net.IPv4(169, 254, 169, 254)) {
		return fmt.Errorf("cloud metadata IP address is not allowed")
	}
	if ip.IsLoopback() || ip.IsUnspecified() {
		if p.allowLoopback {
			return nil
		}
		return fmt.Errorf("loopback IP addresses are not allowed")
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local IP addresses are not allowed")
	}
	if !p.allowPrivate && isPrivateIP(ip) {
		return fmt.Errorf("private IP addresses are not allowed")
	}
	return nil
}

func isLocalhost(host string) bool {
	h := strings.ToLower(host)
	switch h {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0", "::":
		return true
	}
	return strings.HasSuffix(h, ".localhost")
}

func isCloudMetadata(host string) bool {
	h := strings.ToLower(host)
	switch h {
	case "169.254.169.254", "metadata.google.internal", "metadata", "instance-data", "fd00:ec2::254":
		return true
	}
	return strings.HasSuffix(h, ".metadata.google.internal")
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
