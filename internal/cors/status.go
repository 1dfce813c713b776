package cors

// maskOffset separates the redirect codes from the band the proxy relays
// them in, so that browsers do not follow upstream redirects on their own.
const maskOffset = 50

// MaskStatus applies the proxy's side of the contract: 301, 302, 303, 307 and
// 308 are relayed as 251, 252, 253, 257 and 258. Other codes pass through.
func MaskStatus(status int) int {
	switch status {
	case 301, 302, 303, 307, 308:
		return status - maskOffset
	}
	return status
}

// unmask reverses MaskStatus.
func unmask(status int) int {
	switch status {
	case 251, 252, 253, 257, 258:
		return status + maskOffset
	}
	return status
}
