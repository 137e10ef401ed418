// Package currency converts catalog prices into whole so'm using the
// central bank USD rate. The rate is cached with a TTL; the last good
// quote is kept in-process so sales keep working through short feed
// outages.
package currency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"yogochsavdo/backend/internal/cache"
	"yogochsavdo/backend/internal/domain"
)

const rateCacheKey = "currency:usd_som"

var ErrRateUnavailable = errors.New("currency: exchange rate unavailable")

// Fetcher retrieves the current so'm-per-USD rate.
type Fetcher interface {
	FetchRate(ctx context.Context) (float64, error)
}

type Converter struct {
	fetcher Fetcher
	cache   cache.RateCache
	ttl     time.Duration
	log     *logrus.Logger

	mu   sync.RWMutex
	last *cache.Rate
}

func NewConverter(fetcher Fetcher, rateCache cache.RateCache, ttl time.Duration, log *logrus.Logger) *Converter {
	if rateCache == nil {
		rateCache = cache.NoopRateCache{}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Converter{fetcher: fetcher, cache: rateCache, ttl: ttl, log: log}
}

// Rate returns the current quote: cache first, then the upstream feed, then
// the last quote this process saw. Cache failures are logged, never fatal.
func (c *Converter) Rate(ctx context.Context) (cache.Rate, error) {
	if cached, ok, err := c.cache.Get(ctx, rateCacheKey); err != nil {
		c.warn("rate cache read failed", err)
	} else if ok && cached.SomPerUSD > 0 {
		c.remember(*cached)
		return *cached, nil
	}

	value, err := c.fetcher.FetchRate(ctx)
	if err == nil {
		quote := cache.Rate{SomPerUSD: value, FetchedAt: time.Now().UTC()}
		c.remember(quote)
		if setErr := c.cache.Set(ctx, rateCacheKey, &quote, c.ttl); setErr != nil {
			c.warn("rate cache write failed", setErr)
		}
		return quote, nil
	}
	c.warn("rate fetch failed", err)

	c.mu.RLock()
	last := c.last
	c.mu.RUnlock()
	if last != nil {
		return *last, nil
	}
	return cache.Rate{}, ErrRateUnavailable
}

func (c *Converter) remember(quote cache.Rate) {
	c.mu.Lock()
	c.last = &quote
	c.mu.Unlock()
}

func (c *Converter) warn(msg string, err error) {
	if c.log != nil {
		c.log.WithError(err).Warn(msg)
	}
}

// LineTotalSom computes unitPrice × multiplier in whole so'm. The
// multiplier is the piece count for per-piece products and the cubic-meter
// volume for per-kub products. Dollar prices are converted at somPerUSD.
func LineTotalSom(unitPrice, multiplier float64, curr string, somPerUSD float64) int64 {
	total := decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromFloat(multiplier))
	if curr == domain.CurrencyUSD {
		total = total.Mul(decimal.NewFromFloat(somPerUSD))
	}
	return total.Round(0).IntPart()
}
