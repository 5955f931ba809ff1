package ledger

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Store provides pebble-based persistence for ledger balances.
// Thread-safe: all operations go through TokenLedger's mutex.
type Store struct {
	db *pebble.DB
}

// NewStore opens a pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(32 << 20), // 32MB cache; balances are tiny
		MemTableSize: 16 << 20,
		MaxOpenFiles: 1000,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BalanceKey identifies a persisted (asset, holder) balance.
type BalanceKey struct {
	Asset  common.Address
	Holder common.Address
}

var balancePrefix = []byte("bal/")

func balanceKey(asset, holder common.Address) []byte {
	key := make([]byte, 0, len(balancePrefix)+2*common.AddressLength)
	key = append(key, balancePrefix...)
	key = append(key, asset.Bytes()...)
	key = append(key, holder.Bytes()...)
	return key
}

// SaveBalance persists one balance. Zero balances are written too, so a
// spent-to-zero holder does not resurrect its old balance on restart.
func (s *Store) SaveBalance(asset, holder common.Address, amount *big.Int) error {
	if err := s.db.Set(balanceKey(asset, holder), amount.Bytes(), pebble.Sync); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// LoadBalances reads every persisted balance.
func (s *Store) LoadBalances() (map[BalanceKey]*big.Int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: balancePrefix,
		UpperBound: keyUpperBound(balancePrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	balances := make(map[BalanceKey]*big.Int)
	for iter.First(); iter.Valid(); iter.Next() {
		raw := iter.Key()
		if len(raw) != len(balancePrefix)+2*common.AddressLength {
			continue // skip malformed entries
		}
		body := raw[len(balancePrefix):]
		key := BalanceKey{
			Asset:  common.BytesToAddress(body[:common.AddressLength]),
			Holder: common.BytesToAddress(body[common.AddressLength:]),
		}
		balances[key] = new(big.Int).SetBytes(iter.Value())
	}

	return balances, iter.Error()
}

// keyUpperBound returns the smallest key greater than every key with
// the given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
