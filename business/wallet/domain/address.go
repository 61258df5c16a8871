package domain

// DefaultAddressChars is the number of hex characters kept on each side.
const DefaultAddressChars = 4

// FormatAddress shortens addr to its first chars+2 and last chars characters
// joined by "...". Addresses shorter than 2*chars+2 are returned whole.
func FormatAddress(addr string, chars int) string {
	if addr == "" {
		return ""
	}
	if chars <= 0 {
		chars = DefaultAddressChars
	}
	if len(addr) < 2*chars+2 {
		return addr
	}
	return addr[:chars+2] + "..." + addr[len(addr)-chars:]
}
