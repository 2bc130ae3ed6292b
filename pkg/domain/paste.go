package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Paste is the stored entity. Write-once: every field is set at creation
// and never mutated afterwards.
type Paste struct {
	Token       string    `json:"token"`
	OrdinalID   int64     `json:"-"`
	Content     []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	SizeBytes   int       `json:"size_bytes"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Live reports whether the paste is still readable at now. Expired pastes
// must never be observable regardless of where they are physically held.
func (p *Paste) Live(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

type CreateParams struct {
	Content     []byte
	TTL         time.Duration
	ContentType string
	ClientID    string
}

const DefaultContentType = "text/plain; charset=utf-8"

// HashContent returns the hex sha256 digest stored alongside the paste.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
