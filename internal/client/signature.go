package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks a hex HMAC-SHA256 of the raw webhook body. The header
// may carry a "sha256=" prefix.
func VerifySignature(secret string, body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if i := strings.IndexByte(header, '='); i >= 0 && strings.EqualFold(header[:i], "sha256") {
		header = header[i+1:]
	}

	got, err := hex.DecodeString(header)
	if err != nil || len(got) == 0 {
		return false
	}

	return hmac.Equal(got, Sign(secret, body))
}

// Sign returns the raw HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
