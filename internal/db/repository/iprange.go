package repository

import (
	"database/sql"
	"fmt"
	"net"
)

// IPRangeRepository handles the ipranges table: CIDR ranges whose members
// are auto-approved for enrollment.
type IPRangeRepository struct {
	db *sql.DB
}

// NewIPRangeRepository creates a new IP range repository
func NewIPRangeRepository(db *sql.DB) *IPRangeRepository {
	return &IPRangeRepository{db: db}
}

// Contains reports whether ip falls inside any registered range.
// Rows that fail to parse as CIDR are skipped.
func (r *IPRangeRepository) Contains(ip net.IP) (bool, error) {
	if ip == nil {
		return false, nil
	}

	ranges, err := r.List()
	if err != nil {
		return false, err
	}

	for _, cidr := range ranges {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipnet.Contains(ip) {
			return true, nil
		}
	}

	return false, nil
}

// Add registers a CIDR range. The range is validated before insert.
func (r *IPRangeRepository) Add(cidr string) error {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}

	if _, err := r.db.Exec(`INSERT INTO ipranges (iprange) VALUES (?)`, ipnet.String()); err != nil {
		return fmt.Errorf("failed to add ip range: %w", err)
	}

	return nil
}

// Delete removes a CIDR range.
func (r *IPRangeRepository) Delete(cidr string) error {
	result, err := r.db.Exec(`DELETE FROM ipranges WHERE iprange = ?`, cidr)
	if err != nil {
		return fmt.Errorf("failed to delete ip range: %w", err)
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

// List returns all registered CIDR ranges.
func (r *IPRangeRepository) List() ([]string, error) {
	rows, err := r.db.Query(`SELECT iprange FROM ipranges`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ip ranges: %w", err)
	}
	defer rows.Close()

	var ranges []string
	for rows.Next() {
		var cidr string
		if err := rows.Scan(&cidr); err != nil {
			return nil, fmt.Errorf("failed to scan ip range: %w", err)
		}
		ranges = append(ranges, cidr)
	}

	return ranges, rows.Err()
}
