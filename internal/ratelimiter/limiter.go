package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/milkbook/ledger/internal/domain"
)

// KindLimiters holds one token bucket per entity kind so a backlog of one
// kind (say, a week of offline sales) cannot starve writes to the others.
// Burst equals the rate; nothing is saved up beyond one second's worth.
type KindLimiters struct {
	limiters map[domain.Kind]*rate.Limiter
}

// New creates a KindLimiters with ratePerSec tokens per second per kind.
// A non-positive rate disables limiting.
func New(ratePerSec int) *KindLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec
	if ratePerSec <= 0 {
		r, burst = rate.Inf, 1
	}

	kl := &KindLimiters{limiters: make(map[domain.Kind]*rate.Limiter, len(domain.AllKinds))}
	for _, k := range domain.AllKinds {
		kl.limiters[k] = rate.NewLimiter(r, burst)
	}
	return kl
}

// Wait blocks until the kind's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (kl *KindLimiters) Wait(ctx context.Context, kind domain.Kind) error {
	l, ok := kl.limiters[kind]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
