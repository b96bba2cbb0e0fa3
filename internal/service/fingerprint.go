package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const unknownDevicePrefix = "UNKNOWN_DEVICE_"

// DeviceFingerprint derives a stable device id from the user agent. Clients
// without one get a random UNKNOWN_DEVICE_ id.
func DeviceFingerprint(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		b := make([]byte, 4)
		_, _ = rand.Read(b)
		return unknownDevicePrefix + hex.EncodeToString(b)
	}
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:16])
}
