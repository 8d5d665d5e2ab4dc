package device

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

var (
	// errNotAnIPAddress is returned for addresses that do not parse as IPs.
	errNotAnIPAddress = errors.New("not a valid IP address")
	// errReservedRange is returned for addresses in refused ranges.
	errReservedRange = errors.New("IP address is in a reserved range")
)

// reservedV4 is the 240.0.0.0/4 "reserved for future use" block.
var reservedV4 = netip.MustParsePrefix("240.0.0.0/4")

// ValidateAddress checks that a device address is an IP address outside
// the refused ranges. Loopback, multicast, link-local, unspecified and
// reserved addresses are rejected; private RFC1918 ranges are explicitly
// allowed since Tasmota devices typically live on local networks.
// An optional ":port" suffix is accepted.
func ValidateAddress(address string) error {
	host := address
	if strings.Contains(address, ":") && !strings.Contains(address, "::") {
		if h, _, err := net.SplitHostPort(address); err == nil {
			host = h
		}
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%s: %w", address, errNotAnIPAddress)
	}

	switch {
	case addr.IsLoopback(),
		addr.IsMulticast(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsUnspecified(),
		reservedV4.Contains(addr.Unmap()):
		return fmt.Errorf("%s: %w", address, errReservedRange)
	default:
		return nil
	}
}
