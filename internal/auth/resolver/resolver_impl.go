package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/shohq/ontology/internal/auth/domain"
	"github.com/shohq/ontology/internal/clock"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"github.com/shohq/ontology/pkg/tenantctx"
	"gorm.io/gorm"
)

type resolver struct {
	db         *gorm.DB
	personRepo persondomain.Repository
	clk        clock.Clock
}

func NewResolver(db *gorm.DB, personRepo persondomain.Repository, clk clock.Clock) domain.Resolver {
	return &resolver{
		db:         db,
		personRepo: personRepo,
		clk:        clk,
	}
}

func (r *resolver) Resolve(ctx context.Context, token string) (tenantctx.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return tenantctx.Actor{}, apperrors.Authentication("missing token")
	}

	var record domain.AccessToken
	err := r.db.WithContext(ctx).
		First(&record, "token_hash = ?", domain.HashToken(token)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tenantctx.Actor{}, apperrors.Authentication("invalid token")
		}
		return tenantctx.Actor{}, apperrors.Infrastructure(err)
	}
	if !record.ExpiresAt.After(r.clk.Now()) {
		return tenantctx.Actor{}, apperrors.Authentication("token expired")
	}

	person, err := r.personRepo.Get(ctx, record.PersonID)
	if err != nil {
		return tenantctx.Actor{}, apperrors.Infrastructure(err)
	}
	if person == nil || person.Status != persondomain.StatusActive {
		return tenantctx.Actor{}, apperrors.Authentication("invalid token")
	}

	return tenantctx.Actor{
		PersonID: person.ID,
		GroupID:  person.GroupID,
		Role:     person.Role,
	}, nil
}
