package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shohq/ontology/internal/clock"
	"github.com/shohq/ontology/internal/config"
	groupdomain "github.com/shohq/ontology/internal/group/domain"
	"github.com/shohq/ontology/internal/guard"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	"github.com/shohq/ontology/internal/thing/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	pkgdb "github.com/shohq/ontology/pkg/db"
	"github.com/shohq/ontology/pkg/db/pagination"
	"github.com/shohq/ontology/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db        *gorm.DB
	repo      domain.Repository
	groupRepo groupdomain.Repository
	registry  *domain.Registry
	limits    *config.LimitsHolder
	gd        guard.Guard
	genID     *snowflake.Node
	clk       clock.Clock
	log       *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, groupRepo groupdomain.Repository, registry *domain.Registry, limits *config.LimitsHolder, gd guard.Guard, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{
		db:        db,
		repo:      repo,
		groupRepo: groupRepo,
		registry:  registry,
		limits:    limits,
		gd:        gd,
		genID:     genID,
		clk:       clk,
		log:       log.Named("thing.service"),
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	clone.repo = s.repo.WithTx(tx)
	clone.groupRepo = s.groupRepo.WithTx(tx)
	return &clone
}

func (s *service) Create(ctx context.Context, req domain.CreateThingRequest) (*domain.Thing, error) {
	thingType := strings.TrimSpace(req.Type)
	if thingType == "" {
		return nil, apperrors.Validation("type", "type is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	status := req.Status
	if status == "" {
		status = domain.StatusDraft
	}
	if !domain.ValidStatus(status) || status == domain.StatusArchived {
		return nil, apperrors.Validation("status", "invalid initial status")
	}

	typeSpec, _ := s.registry.Spec(thingType)
	if typeSpec.Validate != nil {
		if err := typeSpec.Validate(req.Properties); err != nil {
			return nil, apperrors.Validation("properties", err.Error())
		}
	}

	properties := datatypes.JSONMap{}
	for k, v := range req.Properties {
		properties[k] = v
	}

	now := s.clk.Now()
	thing := domain.Thing{
		ID:         s.genID.Generate(),
		GroupID:    req.GroupID,
		Type:       thingType,
		Name:       name,
		Slug:       slug.Make(name),
		Properties: properties,
		Tags:       datatypes.NewJSONSlice(req.Tags),
		Status:     status,
		Version:    1,
		CreatedBy:  req.CreatedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		groupRepo := s.groupRepo.WithTx(tx)

		// The group row lock is the serialization point for the quota
		// check: two concurrent creates in the same group cannot both
		// pass the count below.
		group, err := groupRepo.GetForUpdate(ctx, req.GroupID)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if group == nil {
			return apperrors.Validation("group_id", "group does not exist")
		}
		if group.Status != groupdomain.StatusActive {
			return apperrors.Validation("group_id", "group is suspended")
		}

		max, ok := group.QuotaForType(thingType)
		if !ok && s.limits != nil {
			max = s.limits.Get().MaxForType(thingType)
		}
		if max > 0 {
			count, err := repo.CountActiveByType(ctx, req.GroupID, thingType)
			if err != nil {
				return apperrors.Infrastructure(err)
			}
			if count >= int64(max) {
				return apperrors.QuotaExceeded(fmt.Sprintf("group limit of %d things of type %q reached", max, thingType))
			}
		}

		if typeSpec.UniqueName {
			exists, err := repo.NameExists(ctx, req.GroupID, thingType, name)
			if err != nil {
				return apperrors.Infrastructure(err)
			}
			if exists {
				return apperrors.Conflict(fmt.Sprintf("a %q named %q already exists in this group", thingType, name))
			}
		}

		if err := repo.Insert(ctx, thing); err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return apperrors.Conflict("duplicate thing")
			}
			return apperrors.Infrastructure(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("thing created",
		zap.String("thing_id", thing.ID.String()),
		zap.String("group_id", thing.GroupID.String()),
		zap.String("type", thing.Type),
	)
	return &thing, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Thing, error) {
	thing, err := s.repo.Get(ctx, id)
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

func (s *service) List(ctx context.Context, req domain.ListThingsRequest) (*domain.ListThingsResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	var cursor *domain.ListCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, apperrors.Validation("page_token", "invalid page token")
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return nil, apperrors.Validation("page_token", "invalid page token")
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return nil, apperrors.Validation("page_token", "invalid page token")
		}
		cursor = &domain.ListCursor{ID: id, CreatedAt: createdAt}
	}

	groupID, err := s.resolveListGroup(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, domain.ListFilter{
		GroupID:  groupID,
		Type:     req.Type,
		Status:   req.Status,
		Cursor:   cursor,
		Limit:    pageSize,
		OrderAsc: req.OrderAsc,
	})
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.Thing) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	things := make([]domain.Thing, 0, len(items))
	for _, item := range items {
		things = append(things, *item)
	}

	return &domain.ListThingsResponse{PageInfo: *pageInfo, Things: things}, nil
}

func (s *service) Patch(ctx context.Context, id snowflake.ID, delta map[string]any, expectedVersion int64) (*domain.Thing, error) {
	if len(delta) == 0 {
		return nil, apperrors.Validation("properties", "empty property delta")
	}

	var out *domain.Thing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		thing, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if thing == nil {
			return apperrors.NotFound("thing does not exist")
		}
		if err := s.gd.CheckRead(ctx, thing.GroupID, guard.ObjectThing); err != nil {
			return err
		}
		if expectedVersion > 0 && thing.Version != expectedVersion {
			return apperrors.Conflict("thing was modified by another writer")
		}

		merged := datatypes.JSONMap{}
		for k, v := range thing.Properties {
			merged[k] = v
		}
		for k, v := range delta {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}

		typeSpec, _ := s.registry.Spec(thing.Type)
		if typeSpec.Validate != nil {
			if err := typeSpec.Validate(merged); err != nil {
				return apperrors.Validation("properties", err.Error())
			}
		}

		prevVersion := thing.Version
		thing.Properties = merged
		thing.Version++
		thing.UpdatedAt = s.clk.Now()

		ok, err := repo.Update(ctx, *thing, prevVersion)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if !ok {
			return apperrors.Conflict("thing was modified by another writer")
		}
		out = thing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Archive(ctx context.Context, id snowflake.ID) (*domain.Thing, error) {
	var out *domain.Thing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		thing, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if thing == nil {
			return apperrors.NotFound("thing does not exist")
		}
		if err := s.gd.CheckRead(ctx, thing.GroupID, guard.ObjectThing); err != nil {
			return err
		}
		if thing.Status == domain.StatusArchived {
			out = thing
			return nil
		}

		prevVersion := thing.Version
		thing.Status = domain.StatusArchived
		thing.Version++
		thing.UpdatedAt = s.clk.Now()

		ok, err := repo.Update(ctx, *thing, prevVersion)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if !ok {
			return apperrors.Conflict("thing was modified by another writer")
		}
		out = thing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) SetStatus(ctx context.Context, id snowflake.ID, status string) (*domain.Thing, error) {
	if !domain.ValidStatus(status) {
		return nil, apperrors.Validation("status", "unknown status")
	}
	if status == domain.StatusArchived {
		return s.Archive(ctx, id)
	}

	var out *domain.Thing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		thing, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if thing == nil {
			return apperrors.NotFound("thing does not exist")
		}
		if err := s.gd.CheckRead(ctx, thing.GroupID, guard.ObjectThing); err != nil {
			return err
		}
		if thing.Status == domain.StatusArchived {
			return apperrors.Validation("status", "archived things cannot change status")
		}
		if thing.Status == status {
			out = thing
			return nil
		}

		prevVersion := thing.Version
		thing.Status = status
		thing.Version++
		thing.UpdatedAt = s.clk.Now()

		ok, err := repo.Update(ctx, *thing, prevVersion)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if !ok {
			return apperrors.Conflict("thing was modified by another writer")
		}
		out = thing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolveListGroup forces list queries into the actor's visibility. A
// platform owner may pass any group (or none, for a global listing); everyone
// else is pinned to a group the read filter accepts.
func (s *service) resolveListGroup(ctx context.Context, requested snowflake.ID) (snowflake.ID, error) {
	if requested != 0 {
		if err := s.gd.CheckRead(ctx, requested, guard.ObjectThing); err != nil {
			return 0, err
		}
		return requested, nil
	}
	actor, ok := tenantctx.ActorFromContext(ctx)
	if !ok || actor.Role == persondomain.RolePlatformOwner {
		return 0, nil
	}
	return actor.GroupID, nil
}
