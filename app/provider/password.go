package provider

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

// StkPassword derives the Lipa na M-Pesa password for a push request: the
// base64 of shortcode+passkey+timestamp, with the timestamp formatted as the
// 14-digit wall-clock time Daraja expects. Deterministic for a given now.
func StkPassword(shortCode, passKey string, now time.Time) (password, timestamp string) {
	timestamp = now.Format(timestampLayout)
	password = base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
	return password, timestamp
}
