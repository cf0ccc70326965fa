package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrOrderNotFound is returned when a swap order does not exist.
var ErrOrderNotFound = errors.New("swap order not found")

// SwapOrder is the persisted record of a cross-chain swap.
type SwapOrder struct {
	SwapID  string `json:"swapId"`
	QuoteID string `json:"quoteId,omitempty"`

	HashLock string `json:"hashLock"`

	FromChain  string `json:"fromChain"`
	ToChain    string `json:"toChain"`
	FromToken  string `json:"fromToken"`
	ToToken    string `json:"toToken"`
	FromAmount string `json:"fromAmount"`
	ToAmount   string `json:"toAmount"`

	UserAddress     string `json:"userAddress"`
	ReceiverAddress string `json:"receiverAddress"`

	FromOrderHash string `json:"fromOrderHash"`
	ToOrderHash   string `json:"toOrderHash"`

	FromEscrowAddress string `json:"fromEscrowAddress,omitempty"`
	ToEscrowAddress   string `json:"toEscrowAddress,omitempty"`
	FromCreateTx      string `json:"fromCreateTx,omitempty"`
	ToCreateTx        string `json:"toCreateTx,omitempty"`
	FromSettlementTx  string `json:"fromSettlementTx,omitempty"`
	ToSettlementTx    string `json:"toSettlementTx,omitempty"`

	DeployedAt     uint64 `json:"deployedAt"`
	WithdrawalAt   uint64 `json:"withdrawalAt"`
	CancellationAt uint64 `json:"cancellationAt"`

	// Permit artifact as a JSON blob, opaque to the storage layer.
	Permit string `json:"permit,omitempty"`

	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateOrder inserts a swap order record.
func (s *Storage) CreateOrder(o *SwapOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO swap_orders (
			swap_id, quote_id, hash_lock,
			from_chain, to_chain, from_token, to_token, from_amount, to_amount,
			user_address, receiver_address,
			from_order_hash, to_order_hash,
			from_escrow_address, to_escrow_address,
			from_create_tx, to_create_tx,
			from_settlement_tx, to_settlement_tx,
			tl_deployed, tl_withdrawal, tl_cancellation,
			permit, status, error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SwapID, o.QuoteID, o.HashLock,
		o.FromChain, o.ToChain, o.FromToken, o.ToToken, o.FromAmount, o.ToAmount,
		o.UserAddress, o.ReceiverAddress,
		o.FromOrderHash, o.ToOrderHash,
		o.FromEscrowAddress, o.ToEscrowAddress,
		o.FromCreateTx, o.ToCreateTx,
		o.FromSettlementTx, o.ToSettlementTx,
		o.DeployedAt, o.WithdrawalAt, o.CancellationAt,
		o.Permit, o.Status, o.Error,
		o.CreatedAt.Unix(), o.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create swap order: %w", err)
	}
	return nil
}

// GetOrder retrieves a swap order by ID.
func (s *Storage) GetOrder(swapID string) (*SwapOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(selectOrderSQL+` WHERE swap_id = ?`, swapID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// UpdateOrder overwrites the mutable fields of a swap order.
func (s *Storage) UpdateOrder(o *SwapOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.UpdatedAt = time.Now()

	res, err := s.db.Exec(`
		UPDATE swap_orders SET
			from_escrow_address = ?, to_escrow_address = ?,
			from_create_tx = ?, to_create_tx = ?,
			from_settlement_tx = ?, to_settlement_tx = ?,
			tl_deployed = ?, tl_withdrawal = ?, tl_cancellation = ?,
			permit = ?, status = ?, error = ?, updated_at = ?
		WHERE swap_id = ?`,
		o.FromEscrowAddress, o.ToEscrowAddress,
		o.FromCreateTx, o.ToCreateTx,
		o.FromSettlementTx, o.ToSettlementTx,
		o.DeployedAt, o.WithdrawalAt, o.CancellationAt,
		o.Permit, o.Status, o.Error, o.UpdatedAt.Unix(),
		o.SwapID,
	)
	if err != nil {
		return fmt.Errorf("failed to update swap order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListOrders returns swap orders ordered by creation time, newest first.
func (s *Storage) ListOrders(limit int) ([]*SwapOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(selectOrderSQL+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list swap orders: %w", err)
	}
	defer rows.Close()

	var orders []*SwapOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CountOrdersByStatus returns the number of swap orders in the given status.
func (s *Storage) CountOrdersByStatus(status string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM swap_orders WHERE status = ?`, status).Scan(&n)
	return n, err
}

const selectOrderSQL = `
	SELECT swap_id, quote_id, hash_lock,
		from_chain, to_chain, from_token, to_token, from_amount, to_amount,
		user_address, receiver_address,
		from_order_hash, to_order_hash,
		from_escrow_address, to_escrow_address,
		from_create_tx, to_create_tx,
		from_settlement_tx, to_settlement_tx,
		tl_deployed, tl_withdrawal, tl_cancellation,
		permit, status, error,
		created_at, updated_at
	FROM swap_orders`

func scanOrder(row rowScanner) (*SwapOrder, error) {
	var o SwapOrder
	var quoteID, fromEscrow, toEscrow, fromCreate, toCreate, fromSettle, toSettle, permit, orderErr sql.NullString
	var created, updated int64

	err := row.Scan(&o.SwapID, &quoteID, &o.HashLock,
		&o.FromChain, &o.ToChain, &o.FromToken, &o.ToToken, &o.FromAmount, &o.ToAmount,
		&o.UserAddress, &o.ReceiverAddress,
		&o.FromOrderHash, &o.ToOrderHash,
		&fromEscrow, &toEscrow,
		&fromCreate, &toCreate,
		&fromSettle, &toSettle,
		&o.DeployedAt, &o.WithdrawalAt, &o.CancellationAt,
		&permit, &o.Status, &orderErr,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}

	o.QuoteID = quoteID.String
	o.FromEscrowAddress = fromEscrow.String
	o.ToEscrowAddress = toEscrow.String
	o.FromCreateTx = fromCreate.String
	o.ToCreateTx = toCreate.String
	o.FromSettlementTx = fromSettle.String
	o.ToSettlementTx = toSettle.String
	o.Permit = permit.String
	o.Error = orderErr.String
	o.CreatedAt = time.Unix(created, 0)
	o.UpdatedAt = time.Unix(updated, 0)
	return &o, nil
}
