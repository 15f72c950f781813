// Package storetest is an in-memory implementation of the store interfaces
// for service tests. DoInTx runs one transaction at a time and restores a
// snapshot when fn fails, which stands in for row locks and rollback.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/store"
)

type Fake struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID     uint
	currencies map[uint]model.Currency
	networks   map[uint]model.Network
	rates      map[uint]model.FixedRate
	transfers  map[uint]model.Transfer
	balances   map[uint]model.Balance
	entries    map[uint]model.LedgerEntry
	referrals  map[uint]uint
	payouts    map[uint]model.ReferralPayout
	failures   map[string]error
}

func New() *Fake {
	return &Fake{
		currencies: map[uint]model.Currency{},
		networks:   map[uint]model.Network{},
		rates:      map[uint]model.FixedRate{},
		transfers:  map[uint]model.Transfer{},
		balances:   map[uint]model.Balance{},
		entries:    map[uint]model.LedgerEntry{},
		referrals:  map[uint]uint{},
		payouts:    map[uint]model.ReferralPayout{},
		failures:   map[string]error{},
	}
}

// Store returns the sub-stores backed by f.
func (f *Fake) Store() *store.Store {
	return &store.Store{
		Network:     &networkStore{f},
		FixedRate:   &fixedRateStore{f},
		Transfer:    &transferStore{f},
		Balance:     &balanceStore{f},
		LedgerEntry: &ledgerEntryStore{f},
		Referral:    &referralStore{f},
	}
}

func (f *Fake) DB(ctx context.Context) *gorm.DB {
	return nil
}

func (f *Fake) DoInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	snap := f.snapshot()
	if err := f.fail("DoInTx"); err != nil {
		return err
	}
	if err := fn(nil); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

// FailOn makes the named operation, e.g. "ledgerentry.Create", return err
// until ClearFailures is called.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

func (f *Fake) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = map[string]error{}
}

func (f *Fake) fail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[op]
}

func (f *Fake) id() uint {
	f.nextID++
	return f.nextID
}

type snapshot struct {
	nextID    uint
	rates     map[uint]model.FixedRate
	transfers map[uint]model.Transfer
	balances  map[uint]model.Balance
	entries   map[uint]model.LedgerEntry
	payouts   map[uint]model.ReferralPayout
}

func (f *Fake) snapshot() snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return snapshot{
		nextID:    f.nextID,
		rates:     copyMap(f.rates),
		transfers: copyMap(f.transfers),
		balances:  copyMap(f.balances),
		entries:   copyMap(f.entries),
		payouts:   copyMap(f.payouts),
	}
}

func (f *Fake) restore(s snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID = s.nextID
	f.rates = s.rates
	f.transfers = s.transfers
	f.balances = s.balances
	f.entries = s.entries
	f.payouts = s.payouts
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Seeding and inspection helpers.

func (f *Fake) AddCurrency(c model.Currency) model.Currency {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		c.ID = f.id()
	}
	f.currencies[c.ID] = c
	return c
}

func (f *Fake) AddNetwork(n model.Network) model.Network {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == 0 {
		n.ID = f.id()
	}
	n.Currency = nil
	f.networks[n.ID] = n
	return n
}

func (f *Fake) AddReferral(userID, referrerID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.referrals[userID] = referrerID
}

func (f *Fake) SetBalance(userID uint, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.balances[userID]
	b.UserID = userID
	b.Balance = amount
	f.balances[userID] = b
}

func (f *Fake) PutTransfer(t model.Transfer) model.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == 0 {
		t.ID = f.id()
	}
	f.transfers[t.ID] = t
	return t
}

func (f *Fake) PutFixedRate(r model.FixedRate) model.FixedRate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		r.ID = f.id()
	}
	f.rates[r.ID] = r
	return r
}

func (f *Fake) Transfer(id uint) model.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers[id]
}

func (f *Fake) Balance(userID uint) model.Balance {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[userID]
	if !ok {
		return zeroBalance(userID)
	}
	return b
}

func (f *Fake) LedgerEntries() []model.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.LedgerEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *Fake) Payouts() []model.ReferralPayout {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ReferralPayout, 0, len(f.payouts))
	for _, p := range f.payouts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func zeroBalance(userID uint) model.Balance {
	return model.Balance{
		UserID:   userID,
		Balance:  decimal.Zero,
		Reserved: decimal.Zero,
		Invested: decimal.Zero,
		Income:   decimal.Zero,
	}
}

func notFound(kind string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, id, gorm.ErrRecordNotFound)
}

// now is what the fake stamps into created/updated columns.
var now = time.Now
