package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/models"
)

const accountColumns = `id, email, password_hash, name, role, mobile, address, created_at`

func CreateAccount(ctx context.Context, db sqlx.ExtContext, a *models.LocalAccount) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now()

	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO local_accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.Email, a.PasswordHash, a.Name, a.Role, a.Mobile, a.Address, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", database.Translate(err))
	}

	return nil
}

func GetAccountByEmail(ctx context.Context, db sqlx.ExtContext, email string) (*models.LocalAccount, error) {
	account := &models.LocalAccount{}

	err := sqlx.GetContext(ctx, db, account, db.Rebind(`
		SELECT `+accountColumns+`
		FROM local_accounts
		WHERE LOWER(email) = LOWER(?)`), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return account, nil
}

func CreateSession(ctx context.Context, db sqlx.ExtContext, token, accountID string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO local_sessions (token, account_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`),
		token, accountID, now(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("create session: %w", database.Translate(err))
	}

	return nil
}

// GetSessionAccount returns the account behind a live session token.
func GetSessionAccount(ctx context.Context, db sqlx.ExtContext, token string) (*models.LocalAccount, error) {
	account := &models.LocalAccount{}

	err := sqlx.GetContext(ctx, db, account, db.Rebind(`
		SELECT a.id, a.email, a.password_hash, a.name, a.role, a.mobile, a.address, a.created_at
		FROM local_sessions s
		JOIN local_accounts a ON a.id = s.account_id
		WHERE s.token = ?
		  AND s.revoked_at IS NULL
		  AND s.expires_at > ?`), token, now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	return account, nil
}

// RevokeSession marks the session as signed out. Revoking an unknown or
// already revoked token is not an error.
func RevokeSession(ctx context.Context, db sqlx.ExtContext, token string) error {
	_, err := db.ExecContext(ctx, db.Rebind(`
		UPDATE local_sessions
		SET revoked_at = ?
		WHERE token = ?
		  AND revoked_at IS NULL`),
		now(), token)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}
