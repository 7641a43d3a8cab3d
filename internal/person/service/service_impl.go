package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/clock"
	groupdomain "github.com/shohq/ontology/internal/group/domain"
	"github.com/shohq/ontology/internal/person/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db        *gorm.DB
	repo      domain.Repository
	groupRepo groupdomain.Repository
	genID     *snowflake.Node
	clk       clock.Clock
	log       *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, groupRepo groupdomain.Repository, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{
		db:        db,
		repo:      repo,
		groupRepo: groupRepo,
		genID:     genID,
		clk:       clk,
		log:       log.Named("person.service"),
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	scoped := *s
	scoped.db = tx
	scoped.repo = s.repo.WithTx(tx)
	scoped.groupRepo = s.groupRepo.WithTx(tx)
	return &scoped
}

func (s *service) Create(ctx context.Context, req domain.CreatePersonRequest) (*domain.Person, error) {
	if !domain.ValidRole(req.Role) {
		return nil, apperrors.Validation("role", "unknown role")
	}
	group, err := s.groupRepo.Get(ctx, req.GroupID)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	if group == nil {
		return nil, apperrors.Validation("group_id", "group does not exist")
	}

	properties := datatypes.JSONMap{}
	for k, v := range req.Properties {
		properties[k] = v
	}

	now := s.clk.Now()
	person := domain.Person{
		ID:         s.genID.Generate(),
		GroupID:    req.GroupID,
		Role:       req.Role,
		Properties: properties,
		Status:     domain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, person); err != nil {
		return nil, apperrors.Infrastructure(err)
	}

	s.log.Info("person created",
		zap.String("person_id", person.ID.String()),
		zap.String("group_id", person.GroupID.String()),
		zap.String("role", person.Role),
	)
	return &person, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Person, error) {
	person, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	if person == nil {
		return nil, apperrors.NotFound("person does not exist")
	}
	return person, nil
}

func (s *service) UpdateRole(ctx context.Context, id snowflake.ID, role string) (*domain.Person, error) {
	if !domain.ValidRole(role) {
		return nil, apperrors.Validation("role", "unknown role")
	}
	person, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	person.Role = role
	person.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, *person); err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	return person, nil
}

func (s *service) Deactivate(ctx context.Context, id snowflake.ID) (*domain.Person, error) {
	person, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if person.Status == domain.StatusDeactivated {
		return person, nil
	}
	person.Status = domain.StatusDeactivated
	person.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, *person); err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	return person, nil
}

func (s *service) ListByGroup(ctx context.Context, groupID snowflake.ID) ([]domain.Person, error) {
	persons, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	return persons, nil
}
