package oracle

import (
	"fmt"
	"math/big"
)

// fractionScale is the fixed-point scale for peg deviations: 1e18 = 1.0.
var fractionScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Deviation returns |answer - peg| / peg as an 18-decimal fraction,
// where the reference peg is 1.0 in the feed's own decimal scale.
func Deviation(answer *big.Int, decimals uint8) *big.Int {
	ref := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	dev := new(big.Int).Sub(answer, ref)
	dev.Abs(dev)
	dev.Mul(dev, fractionScale)
	return dev.Quo(dev, ref)
}

// Pegged reports whether the feed's latest price sits within threshold
// of the 1.0 peg. Threshold is an absolute 18-decimal fraction
// (0.02 = 2e16). The feed is re-queried on every call; nothing is cached.
func Pegged(feed Feed, threshold *big.Int) (bool, error) {
	sample, err := feed.LatestPrice()
	if err != nil {
		return false, fmt.Errorf("failed to query feed: %w", err)
	}
	if sample.Answer == nil || sample.Answer.Sign() <= 0 {
		return false, nil
	}

	// dev * 1e18 <= threshold * ref, kept in integers to avoid the
	// rounding of an explicit division.
	ref := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(feed.Decimals())), nil)
	dev := new(big.Int).Sub(sample.Answer, ref)
	dev.Abs(dev)
	dev.Mul(dev, fractionScale)

	limit := new(big.Int).Mul(threshold, ref)
	return dev.Cmp(limit) <= 0, nil
}
