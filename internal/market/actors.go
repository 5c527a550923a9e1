package market

import (
	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/models"
)

type actor struct {
	svc     *Service
	profile models.Profile
}

func (a actor) ID() string {
	return a.profile.ID
}

func (a actor) Profile() models.Profile {
	return a.profile
}

// Requester is any actor allowed to file recycling requests.
type Requester struct {
	actor
}

type Buyer struct {
	Requester
}

type Seller struct {
	Requester
}

type Recycler struct {
	actor
}

func (s *Service) AsBuyer(p *models.Profile) (*Buyer, error) {
	if err := requireRole(p, models.RoleBuyer); err != nil {
		return nil, err
	}
	return &Buyer{Requester{actor{s, *p}}}, nil
}

func (s *Service) AsSeller(p *models.Profile) (*Seller, error) {
	if err := requireRole(p, models.RoleSeller); err != nil {
		return nil, err
	}
	return &Seller{Requester{actor{s, *p}}}, nil
}

func (s *Service) AsRecycler(p *models.Profile) (*Recycler, error) {
	if err := requireRole(p, models.RoleRecycler); err != nil {
		return nil, err
	}
	return &Recycler{actor{s, *p}}, nil
}

func (s *Service) AsRequester(p *models.Profile) (*Requester, error) {
	if err := requireRole(p, models.RoleBuyer, models.RoleSeller); err != nil {
		return nil, err
	}
	return &Requester{actor{s, *p}}, nil
}

// requireRole fails for a nil profile too, which is what callers hold when
// profile resolution was degraded.
func requireRole(p *models.Profile, roles ...models.Role) error {
	if p == nil || p.Role == "" {
		return apperr.Permission("no role assigned")
	}
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	return apperr.Permission("role %s may not perform this action", p.Role)
}
