package chain

import "strings"

// Substrings that mark a send failure as recoverable by resyncing the nonce
// and retrying. Everything else is treated as a hard failure: retrying a
// reverted or underfunded call cannot succeed and may duplicate a side effect.
var nonceErrorMarkers = []string{
	"nonce",
	"replacement transaction underpriced",
	"already known",
}

// IsNonceError reports whether err looks like a nonce conflict, a stale
// replacement, or a duplicate submission. Classification is by message text
// because the underlying RPC client surfaces node errors as opaque strings.
func IsNonceError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range nonceErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
