package memory

import (
	"context"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	b *binding
}

var _ storage.WalletStore = (*WalletStore)(nil)

// List retrieves all tracked wallets in insertion order.
func (s *WalletStore) List(_ context.Context) ([]*domain.TrackedWallet, error) {
	var out []*domain.TrackedWallet
	err := s.b.do(func(d *dataset) error {
		for _, w := range d.wallets {
			copy := *w
			out = append(out, &copy)
		}
		return nil
	})
	return out, err
}
