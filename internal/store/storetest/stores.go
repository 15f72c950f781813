package storetest

import (
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type networkStore struct{ f *Fake }

func (s *networkStore) GetByID(_ *gorm.DB, id uint) (*model.Network, error) {
	if err := s.f.fail("network.GetByID"); err != nil {
		return nil, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	n, ok := s.f.networks[id]
	if !ok {
		return nil, notFound("network", id)
	}
	if c, ok := s.f.currencies[n.CurrencyID]; ok {
		n.Currency = &c
	}
	return &n, nil
}

func (s *networkStore) ListActive(_ *gorm.DB) ([]*model.Network, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var out []*model.Network
	for _, n := range s.f.networks {
		if !n.IsActive {
			continue
		}
		n := n
		if c, ok := s.f.currencies[n.CurrencyID]; ok {
			n.Currency = &c
		}
		out = append(out, &n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fixedRateStore struct{ f *Fake }

func (s *fixedRateStore) Create(_ *gorm.DB, rate *model.FixedRate) (*model.FixedRate, error) {
	if err := s.f.fail("fixedrate.Create"); err != nil {
		return nil, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	rate.ID = s.f.id()
	s.f.rates[rate.ID] = *rate
	return rate, nil
}

func (s *fixedRateStore) GetByID(_ *gorm.DB, id uint) (*model.FixedRate, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	r, ok := s.f.rates[id]
	if !ok {
		return nil, notFound("fixed rate", id)
	}
	return &r, nil
}

type transferStore struct{ f *Fake }

func (s *transferStore) Create(_ *gorm.DB, t *model.Transfer) (*model.Transfer, error) {
	if err := s.f.fail("transfer.Create"); err != nil {
		return nil, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	t.ID = s.f.id()
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	s.f.transfers[t.ID] = *t
	return t, nil
}

func (s *transferStore) GetByID(_ *gorm.DB, id uint) (*model.Transfer, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	t, ok := s.f.transfers[id]
	if !ok {
		return nil, notFound("transfer", id)
	}
	return &t, nil
}

func (s *transferStore) GetForUpdate(tx *gorm.DB, id uint) (*model.Transfer, error) {
	return s.GetByID(tx, id)
}

func (s *transferStore) FindActiveByTxID(_ *gorm.DB, networkID uint, txID string, excludeID uint) (*model.Transfer, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	for _, t := range s.f.transfers {
		if t.ID == excludeID || t.NetworkID != networkID || t.Status == model.TransferStatusCanceled {
			continue
		}
		if t.TxIDValue() == txID {
			return &t, nil
		}
	}
	return nil, notFound("transfer with tx", txID)
}

func (s *transferStore) Update(_ *gorm.DB, t *model.Transfer, expectedStatus model.TransferStatus, expectedVersion int) (bool, error) {
	if err := s.f.fail("transfer.Update"); err != nil {
		return false, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	cur, ok := s.f.transfers[t.ID]
	if !ok || cur.Status != expectedStatus || cur.Version != expectedVersion {
		return false, nil
	}
	t.Version = expectedVersion + 1
	t.UpdatedAt = now()
	t.CreatedAt = cur.CreatedAt
	s.f.transfers[t.ID] = *t
	return true, nil
}

func (s *transferStore) List(_ *gorm.DB, filter model.TransferFilter) ([]*model.Transfer, int64, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var all []*model.Transfer
	for _, t := range s.f.transfers {
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.NeedsReview != nil && t.NeedsReview != *filter.NeedsReview {
			continue
		}
		t := t
		all = append(all, &t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	if filter.Offset >= len(all) {
		return []*model.Transfer{}, total, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (s *transferStore) ListDue(_ *gorm.DB, at time.Time, limit int) ([]*model.Transfer, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var out []*model.Transfer
	for _, t := range s.f.transfers {
		if t.Status.IsTerminal() || t.TxID == nil || t.NeedsReview {
			continue
		}
		if t.NextCheckAt != nil && t.NextCheckAt.After(at) {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *transferStore) ListReferralPending(_ *gorm.DB, limit int) ([]*model.Transfer, error) {
	if err := s.f.fail("transfer.ListReferralPending"); err != nil {
		return nil, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var out []*model.Transfer
	for _, t := range s.f.transfers {
		if !t.ReferralPending || t.Status != model.TransferStatusCompleted || t.Type != model.TransferTypeDeposit {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *transferStore) ClearReferralPending(_ *gorm.DB, id uint) error {
	if err := s.f.fail("transfer.ClearReferralPending"); err != nil {
		return err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	t, ok := s.f.transfers[id]
	if !ok {
		return notFound("transfer", id)
	}
	t.ReferralPending = false
	s.f.transfers[id] = t
	return nil
}

type balanceStore struct{ f *Fake }

func (s *balanceStore) Get(_ *gorm.DB, userID uint) (*model.Balance, error) {
	b := s.f.Balance(userID)
	return &b, nil
}

func (s *balanceStore) GetForUpdate(_ *gorm.DB, userID uint) (*model.Balance, error) {
	if err := s.f.fail("balance.GetForUpdate"); err != nil {
		return nil, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	b, ok := s.f.balances[userID]
	if !ok {
		b = zeroBalance(userID)
		s.f.balances[userID] = b
	}
	return &b, nil
}

func (s *balanceStore) Save(_ *gorm.DB, b *model.Balance) error {
	if err := s.f.fail("balance.Save"); err != nil {
		return err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.balances[b.UserID] = *b
	return nil
}

type ledgerEntryStore struct{ f *Fake }

func (s *ledgerEntryStore) Create(_ *gorm.DB, e *model.LedgerEntry) (bool, error) {
	if err := s.f.fail("ledgerentry.Create"); err != nil {
		return false, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	for _, existing := range s.f.entries {
		if existing.IdempotencyKey == e.IdempotencyKey {
			return false, nil
		}
	}
	e.ID = s.f.id()
	e.CreatedAt = now()
	s.f.entries[e.ID] = *e
	return true, nil
}

func (s *ledgerEntryStore) GetByKey(_ *gorm.DB, key string) (*model.LedgerEntry, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	for _, e := range s.f.entries {
		if e.IdempotencyKey == key {
			return &e, nil
		}
	}
	return nil, notFound("ledger entry", key)
}

func (s *ledgerEntryStore) FindByTransfer(_ *gorm.DB, transferID uint, kind model.LedgerEntryKind) ([]*model.LedgerEntry, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var out []*model.LedgerEntry
	for _, e := range s.f.entries {
		if e.TransferID == transferID && e.Kind == kind {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type referralStore struct{ f *Fake }

func (s *referralStore) GetReferrer(_ *gorm.DB, userID uint) (uint, bool, error) {
	if err := s.f.fail("referral.GetReferrer"); err != nil {
		return 0, false, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	id, ok := s.f.referrals[userID]
	return id, ok, nil
}

func (s *referralStore) CreatePayout(_ *gorm.DB, p *model.ReferralPayout) (bool, error) {
	if err := s.f.fail("referral.CreatePayout"); err != nil {
		return false, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	for _, existing := range s.f.payouts {
		if existing.TransferID == p.TransferID && existing.Level == p.Level {
			return false, nil
		}
	}
	p.ID = s.f.id()
	p.CreatedAt = now()
	s.f.payouts[p.ID] = *p
	return true, nil
}

func (s *referralStore) ListPendingPayouts(_ *gorm.DB, limit int) ([]*model.ReferralPayout, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var out []*model.ReferralPayout
	for _, p := range s.f.payouts {
		if p.Status == model.ReferralPayoutPending {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *referralStore) UpdatePayout(_ *gorm.DB, p *model.ReferralPayout, expectedStatus model.ReferralPayoutStatus) (bool, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	cur, ok := s.f.payouts[p.ID]
	if !ok || cur.Status != expectedStatus {
		return false, nil
	}
	p.UpdatedAt = now()
	s.f.payouts[p.ID] = *p
	return true, nil
}
