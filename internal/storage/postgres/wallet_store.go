package postgres

import (
	"context"
	"fmt"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// List retrieves all tracked wallets.
func (s *WalletStore) List(ctx context.Context) ([]*domain.TrackedWallet, error) {
	rows, err := s.q.Query(ctx, `SELECT wallet_address, wallet_name, tier FROM tracked_wallets ORDER BY wallet_address`)
	if err != nil {
		return nil, fmt.Errorf("list tracked wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*domain.TrackedWallet
	for rows.Next() {
		var w domain.TrackedWallet
		if err := rows.Scan(&w.Address, &w.Name, &w.Tier); err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}
