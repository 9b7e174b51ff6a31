package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavel-fokin/filehub/internal/files"
	_ "modernc.org/sqlite"
)

// Repository implements files.TicketRepository using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository opens the database at dbPath and prepares the schema
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		path TEXT NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_expires_at ON tickets(expires_at);
	`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create tickets table: %w", err)
	}
	return nil
}

// Create stores a pull ticket
func (r *Repository) Create(t *files.Ticket) error {
	query := `
	INSERT INTO tickets (id, entry_id, path, name, size, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		t.ID,
		t.EntryID,
		t.Path,
		t.Name,
		t.Size,
		t.CreatedAt.UTC(),
		t.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create ticket record: %w", err)
	}

	return nil
}

// FindByID retrieves a ticket by id
func (r *Repository) FindByID(id string) (*files.Ticket, error) {
	query := `
	SELECT id, entry_id, path, name, size, created_at, expires_at
	FROM tickets
	WHERE id = ?
	`

	var t files.Ticket
	err := r.db.QueryRow(query, id).Scan(
		&t.ID,
		&t.EntryID,
		&t.Path,
		&t.Name,
		&t.Size,
		&t.CreatedAt,
		&t.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket %q: %w", id, files.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find ticket: %w", err)
	}

	return &t, nil
}

// Delete removes a ticket by id
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ticket record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("ticket %q: %w", id, files.ErrNotFound)
	}

	return nil
}

// DeleteExpired removes every ticket that expired before now
func (r *Repository) DeleteExpired(now time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM tickets WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tickets: %w", err)
	}
	return result.RowsAffected()
}
