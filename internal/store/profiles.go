package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/models"
)

const profileColumns = `id, name, mobile, address, role, created_at`

func GetProfile(ctx context.Context, db sqlx.ExtContext, id string) (*models.Profile, error) {
	profile := &models.Profile{}

	err := sqlx.GetContext(ctx, db, profile, db.Rebind(`
		SELECT `+profileColumns+`
		FROM profiles
		WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", database.Translate(err))
	}

	return profile, nil
}

// InsertProfileIfAbsent inserts p unless a profile with the same id exists.
// It reports whether this call created the row.
func InsertProfileIfAbsent(ctx context.Context, db sqlx.ExtContext, p *models.Profile) (bool, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}

	result, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		p.ID, p.Name, p.Mobile, p.Address, p.Role, p.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", database.Translate(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

func ListProfilesByRole(ctx context.Context, db sqlx.ExtContext, role models.Role) ([]models.Profile, error) {
	profiles := []models.Profile{}

	err := sqlx.SelectContext(ctx, db, &profiles, db.Rebind(`
		SELECT `+profileColumns+`
		FROM profiles
		WHERE role = ?
		ORDER BY name, id`), role)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	return profiles, nil
}
