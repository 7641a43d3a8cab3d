package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/clock"
	"github.com/shohq/ontology/internal/connection/domain"
	"github.com/shohq/ontology/internal/guard"
	"github.com/shohq/ontology/internal/locking"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	thingdomain "github.com/shohq/ontology/internal/thing/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"github.com/shohq/ontology/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// reorderLockTTL bounds how long a crashed holder can block other reorders
// of the same parent when the distributed lock is in play.
const reorderLockTTL = 30 * time.Second

type service struct {
	db        *gorm.DB
	repo      domain.Repository
	thingRepo thingdomain.Repository
	gd        guard.Guard
	locks     locking.Manager
	genID     *snowflake.Node
	clk       clock.Clock
	log       *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, thingRepo thingdomain.Repository, gd guard.Guard, locks locking.Manager, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{
		db:        db,
		repo:      repo,
		thingRepo: thingRepo,
		gd:        gd,
		locks:     locks,
		genID:     genID,
		clk:       clk,
		log:       log.Named("connection.service"),
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	clone.repo = s.repo.WithTx(tx)
	clone.thingRepo = s.thingRepo.WithTx(tx)
	return &clone
}

func (s *service) Connect(ctx context.Context, req domain.ConnectRequest) (*domain.Connection, error) {
	relType := strings.TrimSpace(req.RelationshipType)
	if relType == "" {
		return nil, apperrors.Validation("relationship_type", "relationship type is required")
	}
	if req.FromThingID == req.ToThingID {
		return nil, apperrors.Validation("to_thing_id", "thing cannot connect to itself")
	}

	from, err := s.loadVisibleThing(ctx, req.FromThingID)
	if err != nil {
		return nil, err
	}
	to, err := s.loadVisibleThing(ctx, req.ToThingID)
	if err != nil {
		return nil, err
	}
	if from.GroupID != to.GroupID {
		// Cross-group edges would let one tenant's graph reference
		// another's records; the endpoint in the foreign group is
		// reported as missing.
		return nil, apperrors.NotFound("thing does not exist")
	}

	metadata := map[string]any{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	conn := domain.Connection{
		ID:               s.genID.Generate(),
		GroupID:          from.GroupID,
		FromThingID:      req.FromThingID,
		ToThingID:        req.ToThingID,
		RelationshipType: relType,
		Metadata:         metadata,
		ValidFrom:        s.clk.Now(),
		CreatedBy:        req.CreatedBy,
		CreatedAt:        s.clk.Now(),
	}

	if err := s.repo.Insert(ctx, conn); err != nil {
		return nil, apperrors.Infrastructure(err)
	}

	s.log.Info("connection created",
		zap.String("connection_id", conn.ID.String()),
		zap.String("relationship_type", relType),
		zap.String("group_id", conn.GroupID.String()),
	)
	return &conn, nil
}

func (s *service) Invalidate(ctx context.Context, id snowflake.ID, at time.Time) (*domain.Connection, error) {
	now := s.clk.Now()
	if at.IsZero() {
		at = now
	}

	var out *domain.Connection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		conn, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if conn == nil {
			return apperrors.NotFound("connection does not exist")
		}
		if err := s.gd.CheckRead(ctx, conn.GroupID, guard.ObjectConnection); err != nil {
			return err
		}
		if conn.ValidTo != nil && !conn.ValidTo.After(now) {
			return apperrors.Conflict("connection is already invalidated")
		}
		if !at.After(conn.ValidFrom) {
			return apperrors.Validation("at", "valid_to must be after valid_from")
		}

		if err := repo.UpdateValidTo(ctx, id, at); err != nil {
			return apperrors.Infrastructure(err)
		}
		conn.ValidTo = &at
		out = conn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Query(ctx context.Context, req domain.QueryRequest) ([]domain.Connection, error) {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.clk.Now()
	}

	filter := domain.QueryFilter{
		FromThingID:      req.FromThingID,
		ToThingID:        req.ToThingID,
		RelationshipType: req.RelationshipType,
		AsOf:             asOf,
	}
	if actorGroup, scoped := s.scopeGroup(ctx); scoped {
		filter.GroupID = actorGroup
	}

	conns, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	return conns, nil
}

func (s *service) Reorder(ctx context.Context, parentID snowflake.ID, relationshipType string, orderedChildIDs []snowflake.ID) error {
	if relationshipType == "" {
		relationshipType = domain.RelationshipContains
	}
	if len(orderedChildIDs) == 0 {
		return apperrors.Validation("ordered_child_ids", "ordered child list is empty")
	}
	seen := make(map[snowflake.ID]struct{}, len(orderedChildIDs))
	for _, id := range orderedChildIDs {
		if _, dup := seen[id]; dup {
			return apperrors.Validation("ordered_child_ids", "duplicate child id")
		}
		seen[id] = struct{}{}
	}

	// Concurrent reorders of the same parent must not interleave; the lock
	// spans the whole transaction.
	release, err := s.locks.Acquire(ctx, "reorder:"+parentID.String(), reorderLockTTL)
	if err != nil {
		return apperrors.Infrastructure(err)
	}
	defer release()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		thingRepo := s.thingRepo.WithTx(tx)

		parent, err := thingRepo.GetForUpdate(ctx, parentID)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if parent == nil {
			return apperrors.NotFound("thing does not exist")
		}
		if err := s.gd.CheckRead(ctx, parent.GroupID, guard.ObjectConnection); err != nil {
			return err
		}

		edges, err := repo.Query(ctx, domain.QueryFilter{
			GroupID:          parent.GroupID,
			FromThingID:      parentID,
			RelationshipType: relationshipType,
			AsOf:             s.clk.Now(),
		})
		if err != nil {
			return apperrors.Infrastructure(err)
		}

		edgeByChild := make(map[snowflake.ID]domain.Connection, len(edges))
		for _, edge := range edges {
			edgeByChild[edge.ToThingID] = edge
		}
		if len(edgeByChild) != len(orderedChildIDs) {
			return apperrors.Validation("ordered_child_ids",
				fmt.Sprintf("expected exactly %d child ids, got %d", len(edgeByChild), len(orderedChildIDs)))
		}
		for _, childID := range orderedChildIDs {
			if _, ok := edgeByChild[childID]; !ok {
				return apperrors.Validation("ordered_child_ids",
					fmt.Sprintf("thing %s is not a connected child", childID))
			}
		}

		now := s.clk.Now()

		// Parent's denormalized order list.
		sequence := make([]any, 0, len(orderedChildIDs))
		for _, childID := range orderedChildIDs {
			sequence = append(sequence, childID.String())
		}
		parentVersion := parent.Version
		parent.Properties[thingdomain.PropertySequence] = sequence
		parent.Version++
		parent.UpdatedAt = now
		ok, err := thingRepo.Update(ctx, *parent, parentVersion)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if !ok {
			return apperrors.Conflict("parent was modified by another writer")
		}

		// Each child's own position and each edge's metadata position.
		for idx, childID := range orderedChildIDs {
			child, err := thingRepo.GetForUpdate(ctx, childID)
			if err != nil {
				return apperrors.Infrastructure(err)
			}
			if child == nil {
				return apperrors.NotFound("thing does not exist")
			}
			childVersion := child.Version
			child.Properties[thingdomain.PropertySequence] = idx
			child.Version++
			child.UpdatedAt = now
			ok, err := thingRepo.Update(ctx, *child, childVersion)
			if err != nil {
				return apperrors.Infrastructure(err)
			}
			if !ok {
				return apperrors.Conflict("child was modified by another writer")
			}

			edge := edgeByChild[childID]
			metadata := map[string]any{}
			for k, v := range edge.Metadata {
				metadata[k] = v
			}
			metadata[domain.MetadataSequenceKey] = idx
			if err := repo.UpdateMetadata(ctx, edge.ID, metadata); err != nil {
				return apperrors.Infrastructure(err)
			}
		}
		return nil
	})
}

func (s *service) loadVisibleThing(ctx context.Context, id snowflake.ID) (*thingdomain.Thing, error) {
	thing, err := s.thingRepo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	if thing == nil {
		return nil, apperrors.NotFound("thing does not exist")
	}
	if err := s.gd.CheckRead(ctx, thing.GroupID, guard.ObjectThing); err != nil {
		return nil, err
	}
	return thing, nil
}

// scopeGroup pins queries to the context actor's group unless the actor may
// see everything.
func (s *service) scopeGroup(ctx context.Context) (snowflake.ID, bool) {
	actor, ok := tenantctx.ActorFromContext(ctx)
	if !ok || actor.Role == persondomain.RolePlatformOwner {
		return 0, false
	}
	return actor.GroupID, true
}
