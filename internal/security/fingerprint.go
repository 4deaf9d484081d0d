package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint keys a client attribute (IP, user agent) so the raw value never
// reaches the session store.
func Fingerprint(secret string, kind string, value string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(kind))
	mac.Write([]byte{0})
	mac.Write([]byte(strings.TrimSpace(value)))
	return hex.EncodeToString(mac.Sum(nil))
}

// ObfuscateID derives a stable public identifier for a user id, so directory
// listings never expose the sequential primary key.
func ObfuscateID(secret string, userID int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("member:" + strconv.FormatInt(userID, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:12])
}
