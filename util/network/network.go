// Package network normalizes the host:port addresses peers listen on and
// are reached at.
package network

import (
	"net"

	"github.com/pkg/errors"
)

// NormalizeAddresses normalizes every address in addrs with defaultPort and
// removes the duplicates, keeping the first occurrence of each.
func NormalizeAddresses(addrs []string, defaultPort string) ([]string, error) {
	result := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		normalized, err := NormalizeAddress(addr, defaultPort)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result, nil
}

// NormalizeAddress returns addr with defaultPort appended if it has no port.
func NormalizeAddress(addr, defaultPort string) (string, error) {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr, nil
	}

	// addr may also be malformed for another reason than the missing port,
	// in which case the joined address does not split either.
	addrWithPort := net.JoinHostPort(addr, defaultPort)
	if _, _, err := net.SplitHostPort(addrWithPort); err != nil {
		return "", errors.Wrapf(err, "malformed address %q", addr)
	}
	return addrWithPort, nil
}
