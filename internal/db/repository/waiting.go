package repository

import (
	"database/sql"
	"fmt"

	"github.com/nivlheim/nivlheim/internal/models"
)

// WaitingRepository handles the waiting_for_approval table: enrollment
// requests parked until an administrator approves them.
type WaitingRepository struct {
	db *sql.DB
}

// NewWaitingRepository creates a new waiting list repository
func NewWaitingRepository(db *sql.DB) *WaitingRepository {
	return &WaitingRepository{db: db}
}

// GetByIP retrieves the waiting entry for an IP address.
// Returns ErrNotFound if the address is not on the waiting list.
func (r *WaitingRepository) GetByIP(ip string) (*models.WaitingEntry, error) {
	query := `
		SELECT ipaddr, hostname, received, approved
		FROM waiting_for_approval
		WHERE ipaddr = ?
	`

	entry := &models.WaitingEntry{}
	var approved int

	err := r.db.QueryRow(query, ip).Scan(
		&entry.IPAddr,
		&entry.Hostname,
		&entry.Received,
		&approved,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waiting entry: %w", err)
	}

	entry.Approved = approved != 0
	return entry, nil
}

// Create adds a new waiting entry.
func (r *WaitingRepository) Create(entry *models.WaitingEntry) error {
	approved := 0
	if entry.Approved {
		approved = 1
	}

	_, err := r.db.Exec(`
		INSERT INTO waiting_for_approval (ipaddr, hostname, received, approved)
		VALUES (?, ?, ?, ?)
	`, entry.IPAddr, entry.Hostname, entry.Received, approved)
	if err != nil {
		return fmt.Errorf("failed to create waiting entry: %w", err)
	}

	return nil
}

// Delete removes the waiting entry for an IP address. Deleting a missing
// entry is not an error.
func (r *WaitingRepository) Delete(ip string) error {
	if _, err := r.db.Exec(`DELETE FROM waiting_for_approval WHERE ipaddr = ?`, ip); err != nil {
		return fmt.Errorf("failed to delete waiting entry: %w", err)
	}
	return nil
}

// SetApproved flips the approval bit for an IP address.
func (r *WaitingRepository) SetApproved(ip string, approved bool) error {
	v := 0
	if approved {
		v = 1
	}

	result, err := r.db.Exec(`UPDATE waiting_for_approval SET approved = ? WHERE ipaddr = ?`, v, ip)
	if err != nil {
		return fmt.Errorf("failed to update waiting entry: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns all waiting entries, oldest first.
func (r *WaitingRepository) List() ([]*models.WaitingEntry, error) {
	rows, err := r.db.Query(`
		SELECT ipaddr, hostname, received, approved
		FROM waiting_for_approval
		ORDER BY received ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.WaitingEntry

	for rows.Next() {
		entry := &models.WaitingEntry{}
		var approved int
		if err := rows.Scan(&entry.IPAddr, &entry.Hostname, &entry.Received, &approved); err != nil {
			return nil, fmt.Errorf("failed to scan waiting entry: %w", err)
		}
		entry.Approved = approved != 0
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
