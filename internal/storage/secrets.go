package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Secret is a revealed swap secret retained for recovery tooling.
type Secret struct {
	ID        string    `json:"id"`
	SwapID    string    `json:"swapId"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExpiredSecret is a revealed secret joined with its originating swap,
// returned for swaps old enough that their timelocks have lapsed.
type ExpiredSecret struct {
	Secret          string `json:"secret"`
	SwapID          string `json:"swapId"`
	HashLock        string `json:"hashLock"`
	FromChain       string `json:"fromChain"`
	ToChain         string `json:"toChain"`
	FromToken       string `json:"fromToken"`
	ToToken         string `json:"toToken"`
	FromAmount      string `json:"fromAmount"`
	ToAmount        string `json:"toAmount"`
	UserAddress     string `json:"userAddress"`
	ReceiverAddress string `json:"receiverAddress"`
	CreatedAt       int64  `json:"createdAt"`
}

// CreateSecret stores a revealed secret for a swap.
func (s *Storage) CreateSecret(swapID, value string) (*Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := &Secret{
		ID:        uuid.New().String(),
		SwapID:    swapID,
		Secret:    value,
		CreatedAt: time.Now(),
	}

	_, err := s.db.Exec(`
		INSERT INTO secrets (id, swap_id, secret, created_at)
		VALUES (?, ?, ?, ?)`,
		sec.ID, sec.SwapID, sec.Secret, sec.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret: %w", err)
	}
	return sec, nil
}

// ListExpiredSecrets returns secrets stored before the cutoff, joined
// with the swap order they belong to.
func (s *Storage) ListExpiredSecrets(cutoff time.Time) ([]*ExpiredSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT sec.secret, o.swap_id, o.hash_lock,
			o.from_chain, o.to_chain, o.from_token, o.to_token,
			o.from_amount, o.to_amount,
			o.user_address, o.receiver_address,
			sec.created_at
		FROM secrets sec
		JOIN swap_orders o ON o.swap_id = sec.swap_id
		WHERE sec.created_at < ?
		ORDER BY sec.created_at DESC`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired secrets: %w", err)
	}
	defer rows.Close()

	var out []*ExpiredSecret
	for rows.Next() {
		var e ExpiredSecret
		err := rows.Scan(&e.Secret, &e.SwapID, &e.HashLock,
			&e.FromChain, &e.ToChain, &e.FromToken, &e.ToToken,
			&e.FromAmount, &e.ToAmount,
			&e.UserAddress, &e.ReceiverAddress,
			&e.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
