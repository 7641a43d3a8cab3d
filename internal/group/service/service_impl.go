package service

import (
	"strings"

	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/clock"
	"github.com/shohq/ontology/internal/config"
	"github.com/shohq/ontology/internal/group/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db     *gorm.DB
	repo   domain.Repository
	limits *config.LimitsHolder
	genID  *snowflake.Node
	clk    clock.Clock
	log    *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, limits *config.LimitsHolder, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{
		db:     db,
		repo:   repo,
		limits: limits,
		genID:  genID,
		clk:    clk,
		log:    log.Named("group.service"),
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	scoped := *s
	scoped.db = tx
	scoped.repo = s.repo.WithTx(tx)
	return &scoped
}

func (s *service) Create(ctx context.Context, req domain.CreateGroupRequest) (*domain.Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}

	if req.ParentGroupID != nil {
		if err := s.checkAncestry(ctx, *req.ParentGroupID, 0); err != nil {
			return nil, err
		}
	}

	settings := datatypes.JSONMap{}
	for k, v := range req.Settings {
		settings[k] = v
	}

	now := s.clk.Now()
	group := domain.Group{
		ID:            s.genID.Generate(),
		ParentGroupID: req.ParentGroupID,
		Name:          name,
		Settings:      settings,
		Status:        domain.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, group); err != nil {
		return nil, apperrors.Infrastructure(err)
	}

	s.log.Info("group created", zap.String("group_id", group.ID.String()))
	return &group, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Group, error) {
	group, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	if group == nil {
		return nil, apperrors.NotFound("group does not exist")
	}
	return group, nil
}

func (s *service) SetParent(ctx context.Context, id snowflake.ID, parentID *snowflake.ID) (*domain.Group, error) {
	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if parentID != nil {
		if *parentID == id {
			return nil, apperrors.Validation("parent_group_id", "group cannot be its own parent")
		}
		// Walking from the proposed parent upward must never reach the
		// group itself, or the chain would become a cycle.
		if err := s.checkAncestryAvoiding(ctx, *parentID, id, 0); err != nil {
			return nil, err
		}
	}

	group.ParentGroupID = parentID
	group.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, *group); err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	return group, nil
}

func (s *service) SetQuota(ctx context.Context, id snowflake.ID, thingType string, max int) (*domain.Group, error) {
	thingType = strings.TrimSpace(thingType)
	if thingType == "" {
		return nil, apperrors.Validation("type", "type is required")
	}
	if max < 0 {
		return nil, apperrors.Validation("max", "quota cannot be negative")
	}

	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	quotas, _ := group.Settings["quotas"].(map[string]any)
	if quotas == nil {
		quotas = map[string]any{}
	}
	quotas[thingType] = max
	group.Settings["quotas"] = quotas
	group.UpdatedAt = s.clk.Now()

	if err := s.repo.Update(ctx, *group); err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	return group, nil
}

func (s *service) Suspend(ctx context.Context, id snowflake.ID) (*domain.Group, error) {
	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.Status == domain.StatusSuspended {
		return group, nil
	}
	group.Status = domain.StatusSuspended
	group.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, *group); err != nil {
		return nil, apperrors.Infrastructure(err)
	}
	return group, nil
}

func (s *service) IsDescendant(ctx context.Context, ancestor, candidate snowflake.ID) (bool, error) {
	current := candidate
	for depth := 0; depth < s.maxDepth(); depth++ {
		group, err := s.repo.Get(ctx, current)
		if err != nil {
			return false, apperrors.Infrastructure(err)
		}
		if group == nil || group.ParentGroupID == nil {
			return false, nil
		}
		if *group.ParentGroupID == ancestor {
			return true, nil
		}
		current = *group.ParentGroupID
	}
	return false, nil
}

// checkAncestry verifies the parent exists and its chain stays within the
// configured depth bound.
func (s *service) checkAncestry(ctx context.Context, parentID snowflake.ID, depth int) error {
	return s.checkAncestryAvoiding(ctx, parentID, 0, depth)
}

func (s *service) checkAncestryAvoiding(ctx context.Context, parentID, avoid snowflake.ID, depth int) error {
	current := parentID
	for {
		if depth >= s.maxDepth() {
			return apperrors.Validation("parent_group_id", "group hierarchy exceeds maximum depth")
		}
		if avoid != 0 && current == avoid {
			return apperrors.Validation("parent_group_id", "assignment would create a cycle")
		}
		group, err := s.repo.Get(ctx, current)
		if err != nil {
			return apperrors.Infrastructure(err)
		}
		if group == nil {
			return apperrors.Validation("parent_group_id", "parent group does not exist")
		}
		if group.ParentGroupID == nil {
			return nil
		}
		current = *group.ParentGroupID
		depth++
	}
}

func (s *service) maxDepth() int {
	if s.limits != nil {
		if d := s.limits.Get().MaxGroupDepth; d > 0 {
			return d
		}
	}
	return domain.MaxDepth
}
