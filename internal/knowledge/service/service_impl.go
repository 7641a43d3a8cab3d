package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/clock"
	"github.com/shohq/ontology/internal/guard"
	"github.com/shohq/ontology/internal/knowledge/domain"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	thingdomain "github.com/shohq/ontology/internal/thing/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"github.com/shohq/ontology/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db        *gorm.DB
	repo      domain.Repository
	thingRepo thingdomain.Repository
	gd        guard.Guard
	genID     *snowflake.Node
	clk       clock.Clock
	log       *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, thingRepo thingdomain.Repository, gd guard.Guard, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{
		db:        db,
		repo:      repo,
		thingRepo: thingRepo,
		gd:        gd,
		genID:     genID,
		clk:       clk,
		log:       log.Named("knowledge.service"),
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	scoped := *s
	scoped.db = tx
	scoped.repo = s.repo.WithTx(tx)
	scoped.thingRepo = s.thingRepo.WithTx(tx)
	return &scoped
}

func (s *service) Put(ctx context.Context, thingID snowflake.ID, chunks []domain.ChunkInput) ([]domain.Chunk, error) {
	if len(chunks) == 0 {
		return nil, apperrors.Validation("chunks", "no chunks supplied")
	}

	thing, err := s.thingRepo.Get(ctx, thingID)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	if thing == nil {
		return nil, apperrors.NotFound("thing does not exist")
	}
	if err := s.gd.CheckRead(ctx, thing.GroupID, guard.ObjectKnowledge); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	stored := make([]domain.Chunk, 0, len(chunks))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteByThing(ctx, thingID); err != nil {
			return apperrors.Infrastructure(err)
		}
		for _, input := range chunks {
			if input.Text == "" {
				return apperrors.Validation("text", "chunk text is required")
			}
			chunk := domain.Chunk{
				ID:        s.genID.Generate(),
				ThingID:   thingID,
				GroupID:   thing.GroupID,
				Text:      input.Text,
				Embedding: datatypes.NewJSONSlice(input.Embedding),
				Labels:    datatypes.NewJSONSlice(input.Labels),
				CreatedAt: now,
			}
			if err := repo.Insert(ctx, chunk); err != nil {
				return apperrors.Infrastructure(err)
			}
			stored = append(stored, chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("knowledge reindexed",
		zap.String("thing_id", thingID.String()),
		zap.Int("chunks", len(stored)),
	)
	return stored, nil
}

func (s *service) ListByThing(ctx context.Context, thingID snowflake.ID) ([]domain.Chunk, error) {
	thing, err := s.thingRepo.Get(ctx, thingID)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	if thing == nil {
		return nil, apperrors.NotFound("thing does not exist")
	}
	if err := s.gd.CheckRead(ctx, thing.GroupID, guard.ObjectKnowledge); err != nil {
		return nil, err
	}

	chunks, err := s.repo.ListByThing(ctx, thingID)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	return chunks, nil
}

func (s *service) ListByLabel(ctx context.Context, label string) ([]domain.Chunk, error) {
	if label == "" {
		return nil, apperrors.Validation("label", "label is required")
	}

	var groupID snowflake.ID
	if actor, ok := tenantctx.ActorFromContext(ctx); ok && actor.Role != persondomain.RolePlatformOwner {
		groupID = actor.GroupID
	}

	chunks, err := s.repo.ListByLabel(ctx, groupID, label)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	return chunks, nil
}
