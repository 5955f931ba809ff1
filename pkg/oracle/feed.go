package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrFeedNotFound = errors.New("price feed not found")

// Sample is one price observation reported by a feed.
type Sample struct {
	Answer     *big.Int  // price in the feed's own decimal scale
	UpdatedAt  time.Time // when the upstream oracle observed the price
	Confidence uint8     // reporter confidence, 0-100
}

// Feed reports the latest price of one asset. Chainlink-style: a fixed
// decimal scale and a latest round sample.
type Feed interface {
	Decimals() uint8
	LatestPrice() (Sample, error)
}

// Registry maps feed addresses to Feed implementations in a thread-safe
// manner. The escrow engine resolves its configured stablecoin feed
// through a Registry on every peg query.
type Registry struct {
	mu    sync.RWMutex
	feeds map[common.Address]Feed
}

func NewRegistry() *Registry {
	return &Registry{
		feeds: make(map[common.Address]Feed),
	}
}

// Register adds a feed under the given address.
// Returns an error if the address is already taken.
func (r *Registry) Register(addr common.Address, feed Feed) error {
	if feed == nil {
		return fmt.Errorf("cannot register nil feed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.feeds[addr]; exists {
		return fmt.Errorf("feed %s already registered", addr.Hex())
	}

	r.feeds[addr] = feed
	return nil
}

// Get retrieves a feed by address.
func (r *Registry) Get(addr common.Address) (Feed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	feed, exists := r.feeds[addr]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, addr.Hex())
	}

	return feed, nil
}

// Count returns the number of registered feeds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.feeds)
}

// StaticFeed is a fixed-answer feed for devnet and tests. The answer
// can be moved at runtime to simulate a drifting or de-pegged price.
type StaticFeed struct {
	mu         sync.RWMutex
	answer     *big.Int
	decimals   uint8
	confidence uint8
}

func NewStaticFeed(answer *big.Int, decimals uint8) *StaticFeed {
	return &StaticFeed{
		answer:     new(big.Int).Set(answer),
		decimals:   decimals,
		confidence: 100,
	}
}

func (f *StaticFeed) Decimals() uint8 { return f.decimals }

func (f *StaticFeed) LatestPrice() (Sample, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Sample{
		Answer:     new(big.Int).Set(f.answer),
		UpdatedAt:  time.Now(),
		Confidence: f.confidence,
	}, nil
}

// SetAnswer moves the reported price.
func (f *StaticFeed) SetAnswer(answer *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer.Set(answer)
}
