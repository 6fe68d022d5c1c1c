package domain

import "time"

// DownloadGrant is a token-bound permission to retrieve one purchased PDF.
// QuotaUsed only ever grows, and only through the repository's conditional
// update; it is never incremented in process memory.
type DownloadGrant struct {
	ID         string
	OrderID    string
	ProductID  string
	Token      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	QuotaLimit int
	QuotaUsed  int
}

func (g *DownloadGrant) ExpiredAt(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

func (g *DownloadGrant) Exhausted() bool {
	return g.QuotaUsed >= g.QuotaLimit
}
