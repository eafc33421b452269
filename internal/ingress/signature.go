package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// verifyWebhookSignature checks sig (hex-encoded HMAC-SHA256 of body)
// against each configured secret in turn, stopping at the first match.
// It returns the index of the matching secret (its logical environment)
// or -1 if none matched. Constant-time comparison per secret; no third
// party HMAC/webhook-verification library appears anywhere in the
// retrieved pack, so this stays on crypto/hmac.
func verifyWebhookSignature(secrets []string, body []byte, sigHex string) int {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return -1
	}

	for i, secret := range secrets {
		if secret == "" {
			continue
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := mac.Sum(nil)
		if hmac.Equal(expected, sig) {
			return i
		}
	}
	return -1
}
