package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrQuoteNotFound is returned when a quote does not exist.
var ErrQuoteNotFound = errors.New("quote not found")

// Quote is the persisted record of an accepted resolver answer.
type Quote struct {
	ID              string    `json:"quoteId"`
	FromChain       string    `json:"fromChain"`
	ToChain         string    `json:"toChain"`
	FromToken       string    `json:"fromToken"`
	ToToken         string    `json:"toToken"`
	Amount          string    `json:"amount"`
	FromChainAmount string    `json:"fromChainAmount"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// CreateQuote inserts a quote record.
func (s *Storage) CreateQuote(q *Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	if q.Status == "" {
		q.Status = "created"
	}

	_, err := s.db.Exec(`
		INSERT INTO quotes (id, from_chain, to_chain, from_token, to_token, amount, from_chain_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.FromChain, q.ToChain, q.FromToken, q.ToToken,
		q.Amount, q.FromChainAmount, q.Status,
		q.CreatedAt.Unix(), q.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create quote: %w", err)
	}
	return nil
}

// GetQuote retrieves a quote by ID.
func (s *Storage) GetQuote(id string) (*Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, from_chain, to_chain, from_token, to_token, amount, from_chain_amount, status, created_at, updated_at
		FROM quotes WHERE id = ?`, id)

	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuoteNotFound
	}
	return q, err
}

// UpdateQuoteStatus updates the status of a quote.
func (s *Storage) UpdateQuoteStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE quotes SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update quote: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrQuoteNotFound
	}
	return nil
}

// ListQuotes returns quotes ordered by creation time, newest first.
func (s *Storage) ListQuotes(limit int) ([]*Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, from_chain, to_chain, from_token, to_token, amount, from_chain_amount, status, created_at, updated_at
		FROM quotes ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuote(row rowScanner) (*Quote, error) {
	var q Quote
	var created, updated int64
	err := row.Scan(&q.ID, &q.FromChain, &q.ToChain, &q.FromToken, &q.ToToken,
		&q.Amount, &q.FromChainAmount, &q.Status, &created, &updated)
	if err != nil {
		return nil, err
	}
	q.CreatedAt = time.Unix(created, 0)
	q.UpdatedAt = time.Unix(updated, 0)
	return &q, nil
}
