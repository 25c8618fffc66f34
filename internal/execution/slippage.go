package execution

import (
	"math/rand"
	"sync"

	"tradesim/internal/model"
)

// Slippage applies a small bounded random deviation to market-priced
// fills, modeling real execution noise. Buys fill higher, sells lower.
// The bound is expressed in basis points of the quote (10 bps = 0.1%).
//
// The randomness source is injectable so tests can pin the seed and get
// deterministic fill prices. A nil *Slippage applies no slippage.
type Slippage struct {
	mu     sync.Mutex
	maxBps int64
	rng    *rand.Rand
}

// NewSlippage creates a slippage model with the given bound and seed.
// maxBps <= 0 disables slippage entirely.
func NewSlippage(maxBps int64, seed int64) *Slippage {
	return &Slippage{
		maxBps: maxBps,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Apply returns the fill price for a quote after slippage.
func (s *Slippage) Apply(quote int64, side string) int64 {
	if s == nil || s.maxBps <= 0 || quote <= 0 {
		return quote
	}

	s.mu.Lock()
	bps := s.rng.Int63n(s.maxBps + 1)
	s.mu.Unlock()

	slip := quote * bps / 10000
	if side == model.SideBuy {
		return quote + slip
	}
	return quote - slip
}
