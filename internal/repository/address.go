package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

const addressColumns = `id, user_id, address_type, label, full_name, phone, street, city, state, postal_code, country, is_default, created_at`

// CreateAddress inserts a, clearing any other default of the same type
// for the user first. Run it inside ExecTx when IsDefault is set.
func (q *Queries) CreateAddress(ctx context.Context, a *domain.Address) error {
	if a.Country == "" {
		a.Country = domain.DefaultCountry
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utcNow()
	}
	if a.UserID == nil {
		a.IsDefault = false
	}
	if a.IsDefault {
		if err := q.clearDefault(ctx, *a.UserID, a.Type); err != nil {
			return err
		}
	}

	err := q.db.QueryRowContext(ctx,
		`INSERT INTO addresses (user_id, address_type, label, full_name, phone, street, city, state, postal_code, country, is_default, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		a.UserID,
		a.Type,
		a.Label,
		a.FullName,
		a.Phone,
		a.Street,
		a.City,
		a.State,
		a.PostalCode,
		a.Country,
		a.IsDefault,
		a.CreatedAt,
	).Scan(&a.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

func (q *Queries) GetAddress(ctx context.Context, id int64) (*domain.Address, error) {
	a, err := scanAddress(q.db.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAddresses returns the user's addresses, defaults first.
func (q *Queries) ListAddresses(ctx context.Context, userID int64) ([]*domain.Address, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	var addresses []*domain.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return addresses, nil
}

// SetDefaultAddress makes id the user's only default of its type.
func (q *Queries) SetDefaultAddress(ctx context.Context, userID, id int64) error {
	a, err := q.GetAddress(ctx, id)
	if err != nil {
		return err
	}
	if a.UserID == nil || *a.UserID != userID {
		return domain.ErrAddressNotFound
	}

	if err := q.clearDefault(ctx, userID, a.Type); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `UPDATE addresses SET is_default = $1 WHERE id = $2`, true, id); err != nil {
		return fmt.Errorf("set default address: %w", err)
	}
	return nil
}

// UpdateAddress rewrites a's fields; the row must belong to *a.UserID.
// Making it the default clears the user's other default of its type, so run
// it inside ExecTx.
func (q *Queries) UpdateAddress(ctx context.Context, a *domain.Address) error {
	if a.UserID == nil {
		return domain.ErrAddressNotFound
	}
	if a.IsDefault {
		if err := q.clearDefault(ctx, *a.UserID, a.Type); err != nil {
			return err
		}
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE addresses
		 SET address_type = $1, label = $2, full_name = $3, phone = $4, street = $5, city = $6,
		     state = $7, postal_code = $8, country = $9, is_default = $10
		 WHERE id = $11 AND user_id = $12`,
		a.Type,
		a.Label,
		a.FullName,
		a.Phone,
		a.Street,
		a.City,
		a.State,
		a.PostalCode,
		a.Country,
		a.IsDefault,
		a.ID,
		*a.UserID,
	)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

// DeleteAddress removes the user's address. Orders keep their snapshot and
// lose only the reference.
func (q *Queries) DeleteAddress(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

func (q *Queries) clearDefault(ctx context.Context, userID int64, t domain.AddressType) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE addresses SET is_default = $1 WHERE user_id = $2 AND address_type = $3 AND is_default`,
		false, userID, t)
	if err != nil {
		return fmt.Errorf("clear default address: %w", err)
	}
	return nil
}

func scanAddress(row rowScanner) (*domain.Address, error) {
	a := &domain.Address{}
	var userID sql.NullInt64
	err := row.Scan(
		&a.ID,
		&userID,
		&a.Type,
		&a.Label,
		&a.FullName,
		&a.Phone,
		&a.Street,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
		&a.IsDefault,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan address: %w", err)
	}
	if userID.Valid {
		id := userID.Int64
		a.UserID = &id
	}
	return a, nil
}
