package storage

import (
	"errors"

	"github.com/fieldops/visitsync/internal/outbox"
	"github.com/fieldops/visitsync/libs/db"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store bundles the synchronizer's persistence: appointments, change
// notifications, tickets and the outbox. State transitions that touch more
// than one of them run in a single transaction.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}
