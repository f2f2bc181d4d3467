package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const ticketColumns = `chat_id, city, iata_code, baseline_price, booking_link, created_at, updated_at`

// PostgresStore keeps tickets in the tracked_tickets table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection. The schema comes from migrations.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, chatID int64) (Ticket, bool, error) {
	var t Ticket
	err := s.db.GetContext(ctx, &t, `SELECT `+ticketColumns+` FROM tracked_tickets WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, false, nil
	}
	if err != nil {
		return Ticket{}, false, fmt.Errorf("tracker: get ticket %d: %w", chatID, err)
	}
	return t, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, t Ticket) error {
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO tracked_tickets (`+ticketColumns+`)
VALUES (:chat_id, :city, :iata_code, :baseline_price, :booking_link, :created_at, :updated_at)
ON CONFLICT (chat_id) DO UPDATE SET
	city = EXCLUDED.city,
	iata_code = EXCLUDED.iata_code,
	baseline_price = EXCLUDED.baseline_price,
	booking_link = EXCLUDED.booking_link,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at`, t)
	if err != nil {
		return fmt.Errorf("tracker: put ticket %d: %w", t.ChatID, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, chatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracked_tickets WHERE chat_id = $1`, chatID)
	if err != nil {
		return false, fmt.Errorf("tracker: delete ticket %d: %w", chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("tracker: delete ticket %d: %w", chatID, err)
	}
	return n > 0, nil
}

// List returns tickets oldest first.
func (s *PostgresStore) List(ctx context.Context) ([]Ticket, error) {
	var out []Ticket
	if err := s.db.SelectContext(ctx, &out, `SELECT `+ticketColumns+` FROM tracked_tickets ORDER BY created_at, chat_id`); err != nil {
		return nil, fmt.Errorf("tracker: list tickets: %w", err)
	}
	return out, nil
}
