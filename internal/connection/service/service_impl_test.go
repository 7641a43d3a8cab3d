package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shohq/ontology/internal/clock"
	"github.com/shohq/ontology/internal/connection/domain"
	"github.com/shohq/ontology/internal/connection/repository"
	groupdomain "github.com/shohq/ontology/internal/group/domain"
	"github.com/shohq/ontology/internal/guard"
	"github.com/shohq/ontology/internal/locking"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	thingdomain "github.com/shohq/ontology/internal/thing/domain"
	thingrepository "github.com/shohq/ontology/internal/thing/repository"
	"github.com/shohq/ontology/pkg/apperrors"
	"github.com/shohq/ontology/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

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

type connFixture struct {
	svc  domain.Service
	db   *gorm.DB
	node *snowflake.Node
	clk  *clock.FakeClock
}

func setupConnectionService(t *testing.T) *connFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(&groupdomain.Group{}, &thingdomain.Thing{}, &domain.Connection{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(
		db,
		repository.NewRepository(db),
		thingrepository.NewRepository(db),
		tenantGuard{},
		locking.NewMemoryManager(),
		node,
		clk,
		zap.NewNop(),
	)
	return &connFixture{svc: svc, db: db, node: node, clk: clk}
}

func (f *connFixture) seedGroup(t *testing.T) snowflake.ID {
	t.Helper()
	group := groupdomain.Group{
		ID:        f.node.Generate(),
		Name:      "acme",
		Settings:  datatypes.JSONMap{},
		Status:    groupdomain.StatusActive,
		CreatedAt: f.clk.Now(),
		UpdatedAt: f.clk.Now(),
	}
	require.NoError(t, f.db.Create(&group).Error)
	return group.ID
}

func (f *connFixture) seedThing(t *testing.T, groupID snowflake.ID, name string) snowflake.ID {
	t.Helper()
	thing := thingdomain.Thing{
		ID:         f.node.Generate(),
		GroupID:    groupID,
		Type:       "node",
		Name:       name,
		Slug:       name,
		Properties: datatypes.JSONMap{},
		Status:     thingdomain.StatusActive,
		Version:    1,
		CreatedBy:  f.node.Generate(),
		CreatedAt:  f.clk.Now(),
		UpdatedAt:  f.clk.Now(),
	}
	require.NoError(t, f.db.Create(&thing).Error)
	return thing.ID
}

func TestConnectAndTemporalQuery(t *testing.T) {
	f := setupConnectionService(t)
	groupID := f.seedGroup(t)
	parent := f.seedThing(t, groupID, "parent")
	child := f.seedThing(t, groupID, "child")
	ctx := context.Background()

	created := f.clk.Now()
	conn, err := f.svc.Connect(ctx, domain.ConnectRequest{
		FromThingID:      parent,
		ToThingID:        child,
		RelationshipType: domain.RelationshipContains,
	})
	require.NoError(t, err)
	require.Equal(t, created, conn.ValidFrom)

	f.clk.Advance(time.Hour)
	ended := f.clk.Now()
	_, err = f.svc.Invalidate(ctx, conn.ID, ended)
	require.NoError(t, err)

	// Inside the validity window.
	edges, err := f.svc.Query(ctx, domain.QueryRequest{
		FromThingID: parent,
		AsOf:        created.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, edges, 1)

	// The instant the edge started it is already visible.
	edges, err = f.svc.Query(ctx, domain.QueryRequest{FromThingID: parent, AsOf: created})
	require.NoError(t, err)
	require.Len(t, edges, 1)

	// The end instant is exclusive.
	edges, err = f.svc.Query(ctx, domain.QueryRequest{FromThingID: parent, AsOf: ended})
	require.NoError(t, err)
	require.Empty(t, edges)

	// Before the edge existed.
	edges, err = f.svc.Query(ctx, domain.QueryRequest{
		FromThingID: parent,
		AsOf:        created.Add(-time.Minute),
	})
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestConnectCrossGroupReportsMissingThing(t *testing.T) {
	f := setupConnectionService(t)
	groupA := f.seedGroup(t)
	groupB := f.seedGroup(t)
	mine := f.seedThing(t, groupA, "mine")
	theirs := f.seedThing(t, groupB, "theirs")

	ctx := tenantctx.WithActor(context.Background(), tenantctx.Actor{
		PersonID: f.node.Generate(),
		GroupID:  groupA,
		Role:     persondomain.RoleOrgUser,
	})
	_, err := f.svc.Connect(ctx, domain.ConnectRequest{
		FromThingID:      mine,
		ToThingID:        theirs,
		RelationshipType: "references",
	})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConnectRejectsSelfEdge(t *testing.T) {
	f := setupConnectionService(t)
	groupID := f.seedGroup(t)
	thing := f.seedThing(t, groupID, "solo")

	_, err := f.svc.Connect(context.Background(), domain.ConnectRequest{
		FromThingID:      thing,
		ToThingID:        thing,
		RelationshipType: "references",
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestInvalidateTwiceConflicts(t *testing.T) {
	f := setupConnectionService(t)
	groupID := f.seedGroup(t)
	parent := f.seedThing(t, groupID, "parent")
	child := f.seedThing(t, groupID, "child")
	ctx := context.Background()

	conn, err := f.svc.Connect(ctx, domain.ConnectRequest{
		FromThingID:      parent,
		ToThingID:        child,
		RelationshipType: domain.RelationshipContains,
	})
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	_, err = f.svc.Invalidate(ctx, conn.ID, time.Time{})
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	_, err = f.svc.Invalidate(ctx, conn.ID, time.Time{})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestInvalidateBeforeValidFromRejected(t *testing.T) {
	f := setupConnectionService(t)
	groupID := f.seedGroup(t)
	parent := f.seedThing(t, groupID, "parent")
	child := f.seedThing(t, groupID, "child")
	ctx := context.Background()

	conn, err := f.svc.Connect(ctx, domain.ConnectRequest{
		FromThingID:      parent,
		ToThingID:        child,
		RelationshipType: domain.RelationshipContains,
	})
	require.NoError(t, err)

	_, err = f.svc.Invalidate(ctx, conn.ID, conn.ValidFrom.Add(-time.Hour))
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestReorderUpdatesAllThreeRecords(t *testing.T) {
	f := setupConnectionService(t)
	groupID := f.seedGroup(t)
	parent := f.seedThing(t, groupID, "parent")
	children := []snowflake.ID{
		f.seedThing(t, groupID, "a"),
		f.seedThing(t, groupID, "b"),
		f.seedThing(t, groupID, "c"),
	}
	ctx := context.Background()

	for _, child := range children {
		_, err := f.svc.Connect(ctx, domain.ConnectRequest{
			FromThingID:      parent,
			ToThingID:        child,
			RelationshipType: domain.RelationshipContains,
		})
		require.NoError(t, err)
	}

	order := []snowflake.ID{children[2], children[0], children[1]}
	require.NoError(t, f.svc.Reorder(ctx, parent, domain.RelationshipContains, order))

	// Parent holds the full ordered list.
	var parentRow thingdomain.Thing
	require.NoError(t, f.db.First(&parentRow, "id = ?", parent).Error)
	stored, ok := parentRow.Properties[thingdomain.PropertySequence].([]any)
	require.True(t, ok)
	require.Len(t, stored, 3)
	for i, id := range order {
		require.Equal(t, id.String(), stored[i])
	}

	// Each child carries its position.
	for i, id := range order {
		var child thingdomain.Thing
		require.NoError(t, f.db.First(&child, "id = ?", id).Error)
		require.EqualValues(t, i, child.Properties[thingdomain.PropertySequence])
	}

	// Each edge carries the same position.
	edges, err := f.svc.Query(ctx, domain.QueryRequest{
		FromThingID:      parent,
		RelationshipType: domain.RelationshipContains,
	})
	require.NoError(t, err)
	require.Len(t, edges, 3)
	for _, edge := range edges {
		var want int
		for i, id := range order {
			if id == edge.ToThingID {
				want = i
			}
		}
		require.EqualValues(t, want, edge.Metadata[domain.MetadataSequenceKey])
	}
}

func TestReorderRejectsWrongChildSet(t *testing.T) {
	f := setupConnectionService(t)
	groupID := f.seedGroup(t)
	parent := f.seedThing(t, groupID, "parent")
	a := f.seedThing(t, groupID, "a")
	b := f.seedThing(t, groupID, "b")
	stranger := f.seedThing(t, groupID, "stranger")
	ctx := context.Background()

	for _, child := range []snowflake.ID{a, b} {
		_, err := f.svc.Connect(ctx, domain.ConnectRequest{
			FromThingID:      parent,
			ToThingID:        child,
			RelationshipType: domain.RelationshipContains,
		})
		require.NoError(t, err)
	}

	// Missing a child.
	err := f.svc.Reorder(ctx, parent, domain.RelationshipContains, []snowflake.ID{a})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	// Contains a thing that is not connected.
	err = f.svc.Reorder(ctx, parent, domain.RelationshipContains, []snowflake.ID{a, b, stranger})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	// Duplicate entry.
	err = f.svc.Reorder(ctx, parent, domain.RelationshipContains, []snowflake.ID{a, a})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}
