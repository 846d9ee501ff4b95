package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// APIKeyPrefix starts every organization API key, so the auth layer can
// tell keys from session tokens without a lookup.
const APIKeyPrefix = "trk_"

// APIKey authenticates event ingestion for one organization. Only the
// SHA-256 of the key is stored.
type APIKey struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Label          string    `json:"label"`
	Hint           string    `json:"hint"`
	CreatedBy      *string   `json:"created_by"`
	DateAdded      time.Time `json:"date_added"`
}

// CreatedAPIKey is returned once, at creation; Key is never readable again.
type CreatedAPIKey struct {
	APIKey
	Key string `json:"key"`
}

// IsAPIKey reports whether raw has the API key shape.
func IsAPIKey(raw string) bool {
	return strings.HasPrefix(raw, APIKeyPrefix) && len(raw) > len(APIKeyPrefix)
}

// HashAPIKey is the stored form of raw.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// APIKeyHint keeps the last four characters for display.
func APIKeyHint(raw string) string {
	if len(raw) <= len(APIKeyPrefix)+4 {
		return APIKeyPrefix
	}
	return APIKeyPrefix + "..." + raw[len(raw)-4:]
}
