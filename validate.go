package iptrail

import "net"

// IsValidIPv4 reports whether s is a strict dotted-quad IPv4 address:
// four groups of 1 to 3 digits, each 0 to 255, and nothing else.
// Leading zeros such as "010" are accepted as long as the value fits.
func IsValidIPv4(s string) bool {
	groups := 0
	digits := 0
	value := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
			if digits > 3 {
				return false
			}
			value = value*10 + int(c-'0')
		case c == '.':
			if digits == 0 || value > 255 {
				return false
			}
			groups++
			if groups > 3 {
				return false
			}
			digits, value = 0, 0
		default:
			return false
		}
	}

	return groups == 3 && digits > 0 && value <= 255
}

// IsPrivateIP returns true if the IP is loopback or in a private/reserved range.
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	if parsed.IsLoopback() {
		return true
	}

	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7", // IPv6 unique local
	}

	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return true
		}
	}

	return false
}
