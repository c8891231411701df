package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignatureMismatch is returned when a webhook signature does not match
// the manifest computed with the shared secret.
var ErrSignatureMismatch = errors.New("signature mismatch")

// WebhookSignature holds the parts of a processor signature header of the
// form "ts=<unix>,v1=<hex>".
type WebhookSignature struct {
	Timestamp string
	Hash      string
}

// ParseWebhookSignature splits the signature header. Unknown parts are ignored.
func ParseWebhookSignature(header string) (WebhookSignature, error) {
	var sig WebhookSignature
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "ts":
			sig.Timestamp = strings.TrimSpace(kv[1])
		case "v1":
			sig.Hash = strings.TrimSpace(kv[1])
		}
	}
	if sig.Timestamp == "" || sig.Hash == "" {
		return WebhookSignature{}, ErrSignatureMismatch
	}
	return sig, nil
}

// WebhookManifest builds the string the processor signs.
func WebhookManifest(resourceID, requestID, ts string) string {
	return "id:" + resourceID + ";request-id:" + requestID + ";ts:" + ts + ";"
}

// SignWebhookManifest returns the lowercase hex HMAC-SHA256 of manifest.
func SignWebhookManifest(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature recomputes the manifest hash and compares it in
// constant time.
func VerifyWebhookSignature(secret, resourceID, requestID string, sig WebhookSignature) error {
	expected := SignWebhookManifest(secret, WebhookManifest(resourceID, requestID, sig.Timestamp))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig.Hash))) {
		return ErrSignatureMismatch
	}
	return nil
}
