package pipeline

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shohq/ontology/internal/auth/resolver"
	"github.com/shohq/ontology/internal/clock"
	"github.com/shohq/ontology/internal/config"
	conndomain "github.com/shohq/ontology/internal/connection/domain"
	connrepository "github.com/shohq/ontology/internal/connection/repository"
	connservice "github.com/shohq/ontology/internal/connection/service"
	eventdomain "github.com/shohq/ontology/internal/event/domain"
	eventrepository "github.com/shohq/ontology/internal/event/repository"
	eventservice "github.com/shohq/ontology/internal/event/service"
	groupdomain "github.com/shohq/ontology/internal/group/domain"
	grouprepository "github.com/shohq/ontology/internal/group/repository"
	groupservice "github.com/shohq/ontology/internal/group/service"
	"github.com/shohq/ontology/internal/guard"
	knowdomain "github.com/shohq/ontology/internal/knowledge/domain"
	knowrepository "github.com/shohq/ontology/internal/knowledge/repository"
	knowservice "github.com/shohq/ontology/internal/knowledge/service"
	"github.com/shohq/ontology/internal/locking"
	"github.com/shohq/ontology/internal/observability/metrics"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	personrepository "github.com/shohq/ontology/internal/person/repository"
	personservice "github.com/shohq/ontology/internal/person/service"
	"github.com/shohq/ontology/internal/pipeline/ops"
	thingdomain "github.com/shohq/ontology/internal/thing/domain"
	thingrepository "github.com/shohq/ontology/internal/thing/repository"
	thingservice "github.com/shohq/ontology/internal/thing/service"
	"github.com/shohq/ontology/pkg/apperrors"
	"github.com/shohq/ontology/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"testing"
	"time"
)

// testGuard mirrors the production tenancy rules without the policy engine:
// platform owners pass, everyone else stays inside their own group.
type testGuard struct{}

func (testGuard) Authorize(ctx context.Context, actor tenantctx.Actor, targetGroupID snowflake.ID, object, action string, hierarchical bool) error {
	if actor.PersonID == 0 {
		return apperrors.Authentication("no actor")
	}
	if actor.Role == persondomain.RolePlatformOwner {
		return nil
	}
	if targetGroupID != actor.GroupID {
		return apperrors.Authorization("actor may not act on this group")
	}
	return nil
}

func (testGuard) CheckRead(ctx context.Context, targetGroupID snowflake.ID, object string) error {
	actor, ok := tenantctx.ActorFromContext(ctx)
	if !ok || actor.Role == persondomain.RolePlatformOwner {
		return nil
	}
	if actor.GroupID != targetGroupID {
		return apperrors.NotFound("record does not exist")
	}
	return nil
}

func (testGuard) ReadScope(ctx context.Context, stmt *gorm.DB, column string) *gorm.DB {
	actor, ok := tenantctx.ActorFromContext(ctx)
	if !ok || actor.Role == persondomain.RolePlatformOwner {
		return stmt
	}
	return stmt.Where(column+" = ?", actor.GroupID)
}

// failingEventRepo fails inserts for selected event types so tests can prove
// the mutation rolls back with its events.
type failingEventRepo struct {
	inner     eventdomain.Repository
	failTypes map[string]bool
}

func (r *failingEventRepo) WithTx(tx *gorm.DB) eventdomain.Repository {
	return &failingEventRepo{inner: r.inner.WithTx(tx), failTypes: r.failTypes}
}

func (r *failingEventRepo) Insert(ctx context.Context, event eventdomain.Event) error {
	if r.failTypes[event.Type] {
		return errors.New("event store unavailable")
	}
	return r.inner.Insert(ctx, event)
}

func (r *failingEventRepo) List(ctx context.Context, filter eventdomain.ListFilter) ([]*eventdomain.Event, error) {
	return r.inner.List(ctx, filter)
}

type pipelineFixture struct {
	pipe     Pipeline
	factory  *ops.Factory
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	resolver *resolver.Static
	groupID  snowflake.ID
	actorID  snowflake.ID
}

const (
	ownerToken    = "owner-token"
	foreignToken  = "foreign-token"
	platformToken = "platform-token"
)

func setupPipeline(t *testing.T, eventRepoWrap func(eventdomain.Repository) eventdomain.Repository) *pipelineFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(
		&groupdomain.Group{},
		&persondomain.Person{},
		&thingdomain.Thing{},
		&conndomain.Connection{},
		&eventdomain.Event{},
		&knowdomain.Chunk{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	gd := testGuard{}
	limits := config.NewStaticLimitsHolder(config.DefaultLimitsConfig())

	groupRepo := grouprepository.NewRepository(db)
	personRepo := personrepository.NewRepository(db)
	thingRepo := thingrepository.NewRepository(db)
	connRepo := connrepository.NewRepository(db)
	knowRepo := knowrepository.NewRepository(db)
	var eventRepo eventdomain.Repository = eventrepository.NewRepository(db)
	if eventRepoWrap != nil {
		eventRepo = eventRepoWrap(eventRepo)
	}

	groups := groupservice.NewService(db, groupRepo, limits, node, clk, log)
	persons := personservice.NewService(db, personRepo, groupRepo, node, clk, log)
	registry := thingdomain.NewRegistry()
	things := thingservice.NewService(db, thingRepo, groupRepo, registry, limits, gd, node, clk, log)
	connections := connservice.NewService(db, connRepo, thingRepo, gd, locking.NewMemoryManager(), node, clk, log)
	knowledge := knowservice.NewService(db, knowRepo, thingRepo, gd, node, clk, log)
	events := eventservice.NewService(db, eventRepo, node, clk, log)

	m, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	// Tenant fixtures: one group, an owner inside it, an outsider, a
	// platform operator.
	group := groupdomain.Group{
		ID:       node.Generate(),
		Name:     "acme",
		Settings: datatypes.JSONMap{},
		Status:   groupdomain.StatusActive,
	}
	require.NoError(t, db.Create(&group).Error)
	otherGroup := groupdomain.Group{
		ID:       node.Generate(),
		Name:     "rival",
		Settings: datatypes.JSONMap{},
		Status:   groupdomain.StatusActive,
	}
	require.NoError(t, db.Create(&otherGroup).Error)

	actorID := node.Generate()
	static := &resolver.Static{Actors: map[string]tenantctx.Actor{
		ownerToken:    {PersonID: actorID, GroupID: group.ID, Role: persondomain.RoleOrgOwner},
		foreignToken:  {PersonID: node.Generate(), GroupID: otherGroup.ID, Role: persondomain.RoleOrgOwner},
		platformToken: {PersonID: node.Generate(), GroupID: group.ID, Role: persondomain.RolePlatformOwner},
	}}

	factory := ops.NewFactory(things, connections, persons, groups, knowledge,
		thingRepo, connRepo, groupRepo, personRepo, clk)
	pipe := New(db, static, gd, events, clk, m, log)

	return &pipelineFixture{
		pipe:     pipe,
		factory:  factory,
		db:       db,
		node:     node,
		clk:      clk,
		resolver: static,
		groupID:  group.ID,
		actorID:  actorID,
	}
}

func TestExecuteCreateThingWritesEventAndAggregate(t *testing.T) {
	f := setupPipeline(t, nil)

	result, err := f.pipe.Execute(context.Background(), ownerToken, f.factory.CreateThing(thingdomain.CreateThingRequest{
		GroupID:   f.groupID,
		Type:      "document",
		Name:      "Report",
		CreatedBy: f.actorID,
	}))
	require.NoError(t, err)
	thing := result.(*thingdomain.Thing)

	var stored thingdomain.Thing
	require.NoError(t, f.db.First(&stored, "id = ?", thing.ID).Error)

	// The event carries the actor, group and time stamped by the pipeline.
	var event eventdomain.Event
	require.NoError(t, f.db.First(&event, "target_id = ?", thing.ID).Error)
	require.Equal(t, ops.EventThingCreated, event.Type)
	require.Equal(t, f.actorID, event.ActorID)
	require.Equal(t, f.groupID, event.GroupID)
	require.True(t, event.Timestamp.Equal(f.clk.Now()))

	// The group's usage aggregate reflects the new thing.
	var group groupdomain.Group
	require.NoError(t, f.db.First(&group, "id = ?", f.groupID).Error)
	usage, ok := group.Settings["usage"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 1, usage["document"])
}

func TestExecuteRollsBackWhenEventAppendFails(t *testing.T) {
	f := setupPipeline(t, func(inner eventdomain.Repository) eventdomain.Repository {
		return &failingEventRepo{inner: inner, failTypes: map[string]bool{ops.EventThingCreated: true}}
	})

	_, err := f.pipe.Execute(context.Background(), ownerToken, f.factory.CreateThing(thingdomain.CreateThingRequest{
		GroupID:   f.groupID,
		Type:      "document",
		Name:      "Report",
		CreatedBy: f.actorID,
	}))
	require.Error(t, err)

	// Neither the thing nor any event survived the rollback.
	var things int64
	require.NoError(t, f.db.Model(&thingdomain.Thing{}).Count(&things).Error)
	require.Zero(t, things)
	var events int64
	require.NoError(t, f.db.Model(&eventdomain.Event{}).Count(&events).Error)
	require.Zero(t, events)
}

// silentSpec mutates state but reports no events. The pipeline must refuse
// to commit it.
type silentSpec struct {
	groupID snowflake.ID
	rowID   snowflake.ID
}

func (s *silentSpec) Name() string { return "test.silent" }
func (s *silentSpec) Object() string { return guard.ObjectThing }
func (s *silentSpec) Action() string { return guard.ActionCreate }
func (s *silentSpec) Hierarchical() bool { return false }

func (s *silentSpec) GroupID(ctx context.Context) (snowflake.ID, error) { return s.groupID, nil }
func (s *silentSpec) Validate(ctx context.Context) error { return nil }

func (s *silentSpec) Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error) {
	thing := thingdomain.Thing{
		ID:         s.rowID,
		GroupID:    s.groupID,
		Type:       "document",
		Name:       "silent",
		Slug:       "silent",
		Properties: datatypes.JSONMap{},
		Status:     thingdomain.StatusDraft,
		Version:    1,
	}
	if err := tx.Create(&thing).Error; err != nil {
		return nil, nil, err
	}
	return &thing, nil, nil
}

func (s *silentSpec) Aggregates(ctx context.Context, tx *gorm.DB, result any) error { return nil }

func TestExecuteRejectsMutationWithoutEvents(t *testing.T) {
	f := setupPipeline(t, nil)
	rowID := f.node.Generate()

	_, err := f.pipe.Execute(context.Background(), ownerToken, &silentSpec{groupID: f.groupID, rowID: rowID})
	require.ErrorIs(t, err, apperrors.ErrInfrastructure)

	// The insert performed inside Mutate was rolled back.
	var count int64
	require.NoError(t, f.db.Model(&thingdomain.Thing{}).Where("id = ?", rowID).Count(&count).Error)
	require.Zero(t, count)
}

func TestExecuteRejectsUnknownToken(t *testing.T) {
	f := setupPipeline(t, nil)

	_, err := f.pipe.Execute(context.Background(), "no-such-token", f.factory.CreateThing(thingdomain.CreateThingRequest{
		GroupID: f.groupID,
		Type:    "document",
		Name:    "Report",
	}))
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestExecuteDeniesForeignTenant(t *testing.T) {
	f := setupPipeline(t, nil)

	_, err := f.pipe.Execute(context.Background(), foreignToken, f.factory.CreateThing(thingdomain.CreateThingRequest{
		GroupID: f.groupID,
		Type:    "document",
		Name:    "Report",
	}))
	require.ErrorIs(t, err, apperrors.ErrAuthorization)

	var count int64
	require.NoError(t, f.db.Model(&thingdomain.Thing{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestExecuteArchiveRefreshesUsage(t *testing.T) {
	f := setupPipeline(t, nil)
	ctx := context.Background()

	created, err := f.pipe.Execute(ctx, ownerToken, f.factory.CreateThing(thingdomain.CreateThingRequest{
		GroupID:   f.groupID,
		Type:      "document",
		Name:      "Report",
		CreatedBy: f.actorID,
	}))
	require.NoError(t, err)
	thing := created.(*thingdomain.Thing)

	_, err = f.pipe.Execute(ctx, ownerToken, f.factory.ArchiveThing(thing.ID))
	require.NoError(t, err)

	var group groupdomain.Group
	require.NoError(t, f.db.First(&group, "id = ?", f.groupID).Error)
	usage, ok := group.Settings["usage"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 0, usage["document"])

	var eventCount int64
	require.NoError(t, f.db.Model(&eventdomain.Event{}).Where("type = ?", ops.EventThingArchived).Count(&eventCount).Error)
	require.EqualValues(t, 1, eventCount)
}

func TestExecuteConnectMaintainsChildCount(t *testing.T) {
	f := setupPipeline(t, nil)
	ctx := context.Background()

	parentRes, err := f.pipe.Execute(ctx, ownerToken, f.factory.CreateThing(thingdomain.CreateThingRequest{
		GroupID: f.groupID, Type: "folder", Name: "parent", CreatedBy: f.actorID,
	}))
	require.NoError(t, err)
	parent := parentRes.(*thingdomain.Thing)

	childRes, err := f.pipe.Execute(ctx, ownerToken, f.factory.CreateThing(thingdomain.CreateThingRequest{
		GroupID: f.groupID, Type: "document", Name: "child", CreatedBy: f.actorID,
	}))
	require.NoError(t, err)
	child := childRes.(*thingdomain.Thing)

	connRes, err := f.pipe.Execute(ctx, ownerToken, f.factory.Connect(conndomain.ConnectRequest{
		FromThingID:      parent.ID,
		ToThingID:        child.ID,
		RelationshipType: conndomain.RelationshipContains,
		CreatedBy:        f.actorID,
	}))
	require.NoError(t, err)
	conn := connRes.(*conndomain.Connection)

	var parentRow thingdomain.Thing
	require.NoError(t, f.db.First(&parentRow, "id = ?", parent.ID).Error)
	require.EqualValues(t, 1, parentRow.Properties["child_count"])

	f.clk.Advance(time.Hour)
	_, err = f.pipe.Execute(ctx, ownerToken, f.factory.InvalidateConnection(conn.ID, time.Time{}))
	require.NoError(t, err)

	require.NoError(t, f.db.First(&parentRow, "id = ?", parent.ID).Error)
	require.EqualValues(t, 0, parentRow.Properties["child_count"])
}
