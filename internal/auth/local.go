package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/models"
	"github.com/safar/renew-path-trade/internal/store"
	"github.com/safar/renew-path-trade/internal/validate"
)

var ErrBadCreds = fmt.Errorf("%w: invalid email or password", apperr.ErrAuth)

const minPasswordLen = 6

// LocalProvider is a development stand-in for the hosted identity provider.
// It keeps bcrypt-hashed accounts and opaque session tokens in the database.
type LocalProvider struct {
	db   *sqlx.DB
	ttl  time.Duration
	cost int
}

func NewLocalProvider(db *sqlx.DB, ttl time.Duration, cost int) *LocalProvider {
	return &LocalProvider{db: db, ttl: ttl, cost: cost}
}

type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Metadata
}

type Session struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Identity  `json:"user"`
}

func (p *LocalProvider) SignUp(ctx context.Context, in SignUpInput) (Identity, error) {
	email, ok := validate.Email(in.Email)
	if !ok {
		return Identity{}, apperr.Validation("email %q is not valid", in.Email)
	}
	if len(in.Password) < minPasswordLen {
		return Identity{}, apperr.Validation("password must be at least %d characters", minPasswordLen)
	}
	if in.Role != "" && !models.Role(in.Role).Valid() {
		return Identity{}, apperr.Validation("unknown role %q", in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	account := models.LocalAccount{
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(in.Name),
		Role:         in.Role,
		Mobile:       strings.TrimSpace(in.Mobile),
		Address:      strings.TrimSpace(in.Address),
	}
	if err := store.CreateAccount(ctx, p.db, &account); err != nil {
		return Identity{}, err
	}

	return identityOf(&account), nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	account, err := store.GetAccountByEmail(ctx, p.db, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return Session{}, ErrBadCreds
		}
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrBadCreds
	}

	session := Session{
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(p.ttl).UTC(),
		User:      identityOf(account),
	}
	if err := store.CreateSession(ctx, p.db, session.Token, account.ID, session.ExpiresAt); err != nil {
		return Session{}, err
	}

	return session, nil
}

func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	return store.RevokeSession(ctx, p.db, token)
}

func (p *LocalProvider) Verify(ctx context.Context, token string) (Identity, error) {
	account, err := store.GetSessionAccount(ctx, p.db, token)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return Identity{}, apperr.Auth("invalid or expired token")
		}
		return Identity{}, err
	}
	return identityOf(account), nil
}

func identityOf(a *models.LocalAccount) Identity {
	return Identity{
		ID:    a.ID,
		Email: a.Email,
		Metadata: Metadata{
			Name:    a.Name,
			Role:    a.Role,
			Mobile:  a.Mobile,
			Address: a.Address,
		},
	}
}
