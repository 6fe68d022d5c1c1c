package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/util"
)

// tokenBytes gives 256 bits of entropy, rendered as 64 hex characters.
const tokenBytes = 32

type Clock interface {
	Now() time.Time
}

type RandomSource interface {
	Bytes(n int) ([]byte, error)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

type cryptoRand struct{}

func (cryptoRand) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func CryptoRand() RandomSource { return cryptoRand{} }

// Issuer mints one download grant per purchased item line: an unguessable
// token with a fixed expiry window and download quota. Duplicate item lines
// get independent grants.
type Issuer struct {
	clock  Clock
	random RandomSource
	window time.Duration
	quota  int
}

func NewIssuer(clock Clock, random RandomSource, window time.Duration, quota int) *Issuer {
	return &Issuer{clock: clock, random: random, window: window, quota: quota}
}

func (i *Issuer) Issue(order *domain.Order) ([]domain.DownloadGrant, error) {
	issuedAt := i.clock.Now()
	expiresAt := issuedAt.Add(i.window)

	grants := make([]domain.DownloadGrant, 0, len(order.Items))
	for _, item := range order.Items {
		raw, err := i.random.Bytes(tokenBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate download token for product %s: %w", item.ProductID, err)
		}
		grants = append(grants, domain.DownloadGrant{
			ID:         util.GenerateUUID(),
			OrderID:    order.ID,
			ProductID:  item.ProductID,
			Token:      hex.EncodeToString(raw),
			IssuedAt:   issuedAt,
			ExpiresAt:  expiresAt,
			QuotaLimit: i.quota,
			QuotaUsed:  0,
		})
	}
	return grants, nil
}
