package market

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/auth"
	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/logging"
	"github.com/safar/renew-path-trade/internal/models"
	"github.com/safar/renew-path-trade/internal/store"
)

// ResolveProfile returns the profile for id, creating it from the sign-up
// metadata on first access. Concurrent first accesses create one row: the
// insert ignores conflicts and the row is re-read afterwards.
func (s *Service) ResolveProfile(ctx context.Context, id auth.Identity) (*models.Profile, error) {
	if id.ID == "" {
		return nil, apperr.Auth("identity has no id")
	}

	p, err := store.GetProfile(ctx, s.db, id.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, database.ErrProfileNotFound) {
		return nil, err
	}

	fresh := profileFor(id)
	created, err := store.InsertProfileIfAbsent(ctx, s.db, &fresh)
	if err != nil {
		return nil, err
	}
	if created {
		logging.FromContext(ctx, s.log).Info("profile_created",
			zap.String("profile_id", fresh.ID),
			zap.String("role", string(fresh.Role)),
		)
	}

	return store.GetProfile(ctx, s.db, id.ID)
}

// profileFor derives a new profile from sign-up metadata. Unknown or missing
// roles become buyer.
func profileFor(id auth.Identity) models.Profile {
	role := models.Role(strings.ToLower(strings.TrimSpace(id.Metadata.Role)))
	if !role.Valid() {
		role = models.RoleBuyer
	}

	name := strings.TrimSpace(id.Metadata.Name)
	if name == "" {
		name = id.Email
	}
	if name == "" {
		name = "User"
	}

	return models.Profile{
		ID:      id.ID,
		Name:    name,
		Mobile:  optional(id.Metadata.Mobile),
		Address: optional(id.Metadata.Address),
		Role:    role,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ListRecyclers returns the profiles a recycling request can be addressed to.
func (s *Service) ListRecyclers(ctx context.Context) ([]models.Profile, error) {
	return store.ListProfilesByRole(ctx, s.db, models.RoleRecycler)
}
