package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a concurrency-safe in-memory ledger useful for unit tests and
// local development. A unit of work holds the store lock for its whole
// duration, so units are fully serialized.
type MemoryStore struct {
	mu          sync.Mutex
	nextAssetID int64
	nextWallet  int64
	nextEntry   int64
	assets      map[string]AssetType
	wallets     map[int64]Wallet
	entries     []Entry
}

// NewInMemory creates an empty in-memory ledger.
func NewInMemory() *MemoryStore {
	return &MemoryStore{
		assets:  make(map[string]AssetType),
		wallets: make(map[int64]Wallet),
	}
}

// WithinTx runs fn as one unit of work. Staged changes are applied only when fn
// returns nil.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, balances: make(map[int64]int64)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	for id, balance := range tx.balances {
		w := s.wallets[id]
		w.Balance = balance
		w.UpdatedAt = now
		s.wallets[id] = w
	}
	for _, e := range tx.entries {
		s.nextEntry++
		e.ID = s.nextEntry
		e.CreatedAt = now
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *MemoryStore) FindWallet(_ context.Context, ownerID string, ownerType OwnerType, assetCode string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findWalletLocked(ownerID, ownerType, assetCode)
}

func (s *MemoryStore) findWalletLocked(ownerID string, ownerType OwnerType, assetCode string) (Wallet, error) {
	for _, w := range s.wallets {
		if w.OwnerID == ownerID && w.OwnerType == ownerType && w.AssetCode == assetCode {
			return w, nil
		}
	}
	return Wallet{}, ErrWalletNotFound
}

func (s *MemoryStore) Balances(_ context.Context, ownerID string, ownerType OwnerType) ([]AssetBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AssetBalance, 0)
	for _, w := range s.wallets {
		if w.OwnerID == ownerID && w.OwnerType == ownerType {
			out = append(out, AssetBalance{AssetCode: w.AssetCode, Balance: w.Balance})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetCode < out[j].AssetCode })
	return out, nil
}

func (s *MemoryStore) Entries(_ context.Context, walletID int64, page Page) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page = page.normalized()
	out := make([]Entry, 0)
	skipped := 0
	for i := len(s.entries) - 1; i >= 0 && len(out) < page.Limit; i-- {
		if s.entries[i].WalletID != walletID {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *MemoryStore) EnsureAssetType(_ context.Context, code string) (AssetType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.assets[code]; ok {
		return a, nil
	}
	s.nextAssetID++
	a := AssetType{ID: s.nextAssetID, Code: code}
	s.assets[code] = a
	return a, nil
}

func (s *MemoryStore) EnsureWallet(_ context.Context, ownerID string, ownerType OwnerType, assetCode string) (Wallet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, err := s.findWalletLocked(ownerID, ownerType, assetCode); err == nil {
		return w, false, nil
	}
	asset, ok := s.assets[assetCode]
	if !ok {
		return Wallet{}, false, fmt.Errorf("asset type %s not registered", assetCode)
	}
	s.nextWallet++
	w := Wallet{
		ID:          s.nextWallet,
		OwnerID:     ownerID,
		OwnerType:   ownerType,
		AssetTypeID: asset.ID,
		AssetCode:   assetCode,
		UpdatedAt:   time.Now().UTC(),
	}
	s.wallets[w.ID] = w
	return w, true, nil
}

func (s *MemoryStore) Wallets(_ context.Context) ([]Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Journal(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...), nil
}

// memoryTx stages balance changes and entries until the unit commits. The
// store lock is already held by WithinTx.
type memoryTx struct {
	store    *MemoryStore
	balances map[int64]int64
	entries  []Entry
}

func (t *memoryTx) FindWallet(_ context.Context, ownerID string, ownerType OwnerType, assetCode string) (Wallet, error) {
	w, err := t.store.findWalletLocked(ownerID, ownerType, assetCode)
	if err != nil {
		return Wallet{}, err
	}
	return t.staged(w), nil
}

func (t *memoryTx) LockWallet(_ context.Context, id int64) (Wallet, error) {
	w, ok := t.store.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return t.staged(w), nil
}

func (t *memoryTx) AdjustBalance(_ context.Context, id int64, delta int64) (int64, error) {
	w, ok := t.store.wallets[id]
	if !ok {
		return 0, ErrWalletNotFound
	}
	w = t.staged(w)
	if (delta > 0 && w.Balance > math.MaxInt64-delta) || (delta < 0 && w.Balance < math.MinInt64-delta) {
		return 0, ErrBalanceOverflow
	}
	next := w.Balance + delta
	if next < 0 && !w.AllowsOverdraft() {
		return 0, ErrInsufficientBalance
	}
	t.balances[id] = next
	return next, nil
}

func (t *memoryTx) AppendEntry(_ context.Context, entry Entry) error {
	if _, ok := t.store.wallets[entry.WalletID]; !ok {
		return ErrWalletNotFound
	}
	t.entries = append(t.entries, entry)
	return nil
}

func (t *memoryTx) staged(w Wallet) Wallet {
	if b, ok := t.balances[w.ID]; ok {
		w.Balance = b
	}
	return w
}
