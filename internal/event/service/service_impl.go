package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/clock"
	"github.com/shohq/ontology/internal/event/domain"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"github.com/shohq/ontology/pkg/db/pagination"
	"github.com/shohq/ontology/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	clk   clock.Clock
	log   *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{
		db:    db,
		repo:  repo,
		genID: genID,
		clk:   clk,
		log:   log.Named("event.service"),
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	clone.repo = s.repo.WithTx(tx)
	return &clone
}

func (s *service) Append(ctx context.Context, req domain.AppendRequest) (*domain.Event, error) {
	eventType := strings.TrimSpace(req.Type)
	if eventType == "" {
		return nil, apperrors.Validation("type", "event type is required")
	}
	if req.ActorID == 0 {
		return nil, apperrors.Validation("actor_id", "actor is required")
	}
	if req.GroupID == 0 {
		return nil, apperrors.Validation("group_id", "group is required")
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		if k == "" {
			continue
		}
		metadata[k] = v
	}

	event := domain.Event{
		ID:        s.genID.Generate(),
		Type:      eventType,
		ActorID:   req.ActorID,
		TargetID:  req.TargetID,
		GroupID:   req.GroupID,
		Timestamp: s.clk.Now(),
		Metadata:  metadata,
	}

	if err := s.repo.Insert(ctx, event); err != nil {
		s.log.Warn("failed to append event", zap.String("type", eventType), zap.Error(err))
		return nil, apperrors.Infrastructure(err)
	}
	return &event, nil
}

func (s *service) Query(ctx context.Context, req domain.QueryEventsRequest) (*domain.QueryEventsResponse, error) {
	groupID := req.GroupID
	if actor, ok := tenantctx.ActorFromContext(ctx); ok && actor.Role != persondomain.RolePlatformOwner {
		// Non-platform actors only ever see their own group's log,
		// regardless of what they asked for.
		if groupID != 0 && groupID != actor.GroupID {
			return nil, apperrors.NotFound("group does not exist")
		}
		groupID = actor.GroupID
	}

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
		ts, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return nil, apperrors.Validation("page_token", "invalid page token")
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return nil, apperrors.Validation("page_token", "invalid page token")
		}
		cursor = &domain.ListCursor{ID: id, Timestamp: ts}
	}

	items, err := s.repo.List(ctx, domain.ListFilter{
		GroupID:  groupID,
		ActorID:  req.ActorID,
		TargetID: req.TargetID,
		Type:     req.Type,
		SinceTs:  req.SinceTs,
		Cursor:   cursor,
		Limit:    pageSize,
	})
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.Event) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.Timestamp.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		events = append(events, *item)
	}

	return &domain.QueryEventsResponse{PageInfo: *pageInfo, Events: events}, nil
}
