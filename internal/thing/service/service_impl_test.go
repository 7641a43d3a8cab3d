package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shohq/ontology/internal/clock"
	"github.com/shohq/ontology/internal/config"
	groupdomain "github.com/shohq/ontology/internal/group/domain"
	grouprepository "github.com/shohq/ontology/internal/group/repository"
	"github.com/shohq/ontology/internal/guard"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	"github.com/shohq/ontology/internal/thing/domain"
	"github.com/shohq/ontology/internal/thing/repository"
	"github.com/shohq/ontology/pkg/apperrors"
	"github.com/shohq/ontology/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// tenantGuard applies the same read masking the real guard does, without
// dragging the policy engine into service tests.
type tenantGuard struct{}

func (tenantGuard) Authorize(ctx context.Context, actor tenantctx.Actor, targetGroupID snowflake.ID, object, action string, hierarchical bool) error {
	return nil
}

func (tenantGuard) CheckRead(ctx context.Context, targetGroupID snowflake.ID, object string) error {
	actor, ok := tenantctx.ActorFromContext(ctx)
	if !ok || actor.Role == persondomain.RolePlatformOwner {
		return nil
	}
	if actor.GroupID != targetGroupID {
		return apperrors.NotFound("record does not exist")
	}
	return nil
}

func (tenantGuard) ReadScope(ctx context.Context, stmt *gorm.DB, column string) *gorm.DB {
	actor, ok := tenantctx.ActorFromContext(ctx)
	if !ok || actor.Role == persondomain.RolePlatformOwner {
		return stmt
	}
	return stmt.Where(column+" = ?", actor.GroupID)
}

var _ guard.Guard = tenantGuard{}

type thingFixture struct {
	svc      domain.Service
	registry *domain.Registry
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
}

func setupThingService(t *testing.T, limits config.LimitsConfig) *thingFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(&groupdomain.Group{}, &domain.Thing{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	registry := domain.NewRegistry()

	svc := NewService(
		db,
		repository.NewRepository(db),
		grouprepository.NewRepository(db),
		registry,
		config.NewStaticLimitsHolder(limits),
		tenantGuard{},
		node,
		clk,
		zap.NewNop(),
	)
	return &thingFixture{svc: svc, registry: registry, db: db, node: node, clk: clk}
}

func (f *thingFixture) seedGroup(t *testing.T, quotas map[string]any) snowflake.ID {
	t.Helper()
	settings := datatypes.JSONMap{}
	if quotas != nil {
		settings["quotas"] = quotas
	}
	group := groupdomain.Group{
		ID:        f.node.Generate(),
		Name:      "acme",
		Settings:  settings,
		Status:    groupdomain.StatusActive,
		CreatedAt: f.clk.Now(),
		UpdatedAt: f.clk.Now(),
	}
	require.NoError(t, f.db.Create(&group).Error)
	return group.ID
}

func TestCreateAssignsIdentity(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupID := f.seedGroup(t, nil)

	thing, err := f.svc.Create(context.Background(), domain.CreateThingRequest{
		GroupID:    groupID,
		Type:       "document",
		Name:       "Quarterly Report",
		Properties: map[string]any{"pages": 12},
		CreatedBy:  f.node.Generate(),
	})
	require.NoError(t, err)
	require.NotZero(t, thing.ID)
	require.Equal(t, "quarterly-report", thing.Slug)
	require.Equal(t, domain.StatusDraft, thing.Status)
	require.Equal(t, int64(1), thing.Version)
}

func TestCreateQuotaExceeded(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupID := f.seedGroup(t, map[string]any{"document": 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Create(ctx, domain.CreateThingRequest{
			GroupID: groupID,
			Type:    "document",
			Name:    fmt.Sprintf("doc-%d", i),
		})
		require.NoError(t, err)
	}

	_, err := f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID,
		Type:    "document",
		Name:    "one too many",
	})
	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

	// Other types are not affected by the document quota.
	_, err = f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID,
		Type:    "image",
		Name:    "logo",
	})
	require.NoError(t, err)
}

func TestCreateQuotaFreedByArchive(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupID := f.seedGroup(t, map[string]any{"document": 1})
	ctx := context.Background()

	first, err := f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID, Type: "document", Name: "first",
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID, Type: "document", Name: "second",
	})
	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

	_, err = f.svc.Archive(ctx, first.ID)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID, Type: "document", Name: "second",
	})
	require.NoError(t, err)
}

func TestCreateUniqueNameConflict(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	f.registry.Register("tag", domain.TypeSpec{UniqueName: true})
	groupID := f.seedGroup(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID, Type: "tag", Name: "urgent",
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID, Type: "tag", Name: "urgent",
	})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestPatchMergesAndDeletes(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupID := f.seedGroup(t, nil)
	ctx := context.Background()

	thing, err := f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID:    groupID,
		Type:       "document",
		Name:       "notes",
		Properties: map[string]any{"color": "red", "pages": 3},
	})
	require.NoError(t, err)

	patched, err := f.svc.Patch(ctx, thing.ID, map[string]any{
		"pages": 4,
		"color": nil,
	}, thing.Version)
	require.NoError(t, err)
	require.Equal(t, int64(2), patched.Version)
	require.EqualValues(t, 4, patched.Properties["pages"])
	_, hasColor := patched.Properties["color"]
	require.False(t, hasColor)
}

func TestPatchStaleVersionConflicts(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupID := f.seedGroup(t, nil)
	ctx := context.Background()

	thing, err := f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID, Type: "document", Name: "notes",
	})
	require.NoError(t, err)

	_, err = f.svc.Patch(ctx, thing.ID, map[string]any{"a": 1}, thing.Version)
	require.NoError(t, err)

	// Second writer still holds version 1.
	_, err = f.svc.Patch(ctx, thing.ID, map[string]any{"b": 2}, thing.Version)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestArchiveIsIdempotent(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupID := f.seedGroup(t, nil)
	ctx := context.Background()

	thing, err := f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID, Type: "document", Name: "old",
	})
	require.NoError(t, err)

	archived, err := f.svc.Archive(ctx, thing.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusArchived, archived.Status)
	version := archived.Version

	again, err := f.svc.Archive(ctx, thing.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusArchived, again.Status)
	require.Equal(t, version, again.Version)
}

func TestSetStatusRejectsLeavingArchived(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupID := f.seedGroup(t, nil)
	ctx := context.Background()

	thing, err := f.svc.Create(ctx, domain.CreateThingRequest{
		GroupID: groupID, Type: "document", Name: "old",
	})
	require.NoError(t, err)

	_, err = f.svc.Archive(ctx, thing.ID)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, thing.ID, domain.StatusActive)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGetMasksForeignGroup(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupA := f.seedGroup(t, nil)
	groupB := f.seedGroup(t, nil)

	thing, err := f.svc.Create(context.Background(), domain.CreateThingRequest{
		GroupID: groupB, Type: "document", Name: "secret",
	})
	require.NoError(t, err)

	ctx := tenantctx.WithActor(context.Background(), tenantctx.Actor{
		PersonID: f.node.Generate(),
		GroupID:  groupA,
		Role:     persondomain.RoleOrgUser,
	})
	_, err = f.svc.Get(ctx, thing.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Equal(t, "not found", apperrors.PublicMessage(err))
}

func TestListPaginatesWithCursor(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupID := f.seedGroup(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Create(ctx, domain.CreateThingRequest{
			GroupID: groupID,
			Type:    "document",
			Name:    fmt.Sprintf("doc-%d", i),
		})
		require.NoError(t, err)
		f.clk.Advance(time.Second)
	}

	seen := map[string]bool{}
	token := ""
	pages := 0
	for {
		req := domain.ListThingsRequest{GroupID: groupID, Type: "document"}
		req.PageSize = 2
		req.PageToken = token
		resp, err := f.svc.List(ctx, req)
		require.NoError(t, err)
		require.LessOrEqual(t, len(resp.Things), 2)
		for _, item := range resp.Things {
			require.False(t, seen[item.ID.String()], "duplicate item across pages")
			seen[item.ID.String()] = true
		}
		pages++
		if !resp.HasMore {
			break
		}
		token = resp.NextPageToken
	}
	require.Equal(t, 5, len(seen))
	require.Equal(t, 3, pages)
}

func TestListPinsNonPlatformActorToOwnGroup(t *testing.T) {
	f := setupThingService(t, config.DefaultLimitsConfig())
	groupA := f.seedGroup(t, nil)
	groupB := f.seedGroup(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateThingRequest{GroupID: groupA, Type: "document", Name: "mine"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, domain.CreateThingRequest{GroupID: groupB, Type: "document", Name: "theirs"})
	require.NoError(t, err)

	actorCtx := tenantctx.WithActor(context.Background(), tenantctx.Actor{
		PersonID: f.node.Generate(),
		GroupID:  groupA,
		Role:     persondomain.RoleOrgUser,
	})

	// No group requested: listing falls back to the actor's own group.
	resp, err := f.svc.List(actorCtx, domain.ListThingsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Things, 1)
	require.Equal(t, "mine", resp.Things[0].Name)

	// Requesting the foreign group is indistinguishable from it not existing.
	_, err = f.svc.List(actorCtx, domain.ListThingsRequest{GroupID: groupB})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
