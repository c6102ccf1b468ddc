package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fieldops/visitsync/internal/model"
)

func (s *Store) TicketByID(ctx context.Context, id string) (model.Ticket, error) {
	var t model.Ticket
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, status, customer_email, COALESCE(customer_name, '')
		FROM tickets
		WHERE id = $1
	`, id).Scan(&t.ID, &status, &t.CustomerEmail, &t.CustomerName)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Ticket{}, ErrNotFound
	}
	if err != nil {
		return model.Ticket{}, err
	}
	t.Status = model.TicketStatus(status)
	return t, nil
}

// revertTicket puts a ticket back to its pre-scheduling state when the
// visit is cancelled.
func revertTicket(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE tickets
		SET status = 'triaged'
		WHERE id = $1
	`, id)
	return err
}
