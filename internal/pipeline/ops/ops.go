// Package ops holds the operation specs executed by the mutation pipeline.
// Each spec binds a feature service call to the guard object/action it needs
// and to the events describing the change.
package ops

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/clock"
	conndomain "github.com/shohq/ontology/internal/connection/domain"
	groupdomain "github.com/shohq/ontology/internal/group/domain"
	knowdomain "github.com/shohq/ontology/internal/knowledge/domain"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	thingdomain "github.com/shohq/ontology/internal/thing/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"gorm.io/gorm"
)

// Factory builds operation specs over the feature services. One instance is
// shared; specs themselves are per-execution.
type Factory struct {
	things      thingdomain.Service
	connections conndomain.Service
	persons     persondomain.Service
	groups      groupdomain.Service
	knowledge   knowdomain.Service

	thingRepo thingdomain.Repository
	connRepo  conndomain.Repository
	groupRepo groupdomain.Repository
	prsnRepo  persondomain.Repository

	clk clock.Clock
}

func NewFactory(
	things thingdomain.Service,
	connections conndomain.Service,
	persons persondomain.Service,
	groups groupdomain.Service,
	knowledge knowdomain.Service,
	thingRepo thingdomain.Repository,
	connRepo conndomain.Repository,
	groupRepo groupdomain.Repository,
	prsnRepo persondomain.Repository,
	clk clock.Clock,
) *Factory {
	return &Factory{
		things:      things,
		connections: connections,
		persons:     persons,
		groups:      groups,
		knowledge:   knowledge,
		thingRepo:   thingRepo,
		connRepo:    connRepo,
		groupRepo:   groupRepo,
		prsnRepo:    prsnRepo,
		clk:         clk,
	}
}

// refreshUsage recomputes the group's live count of non-archived things of
// one type and stores it under settings.usage. Runs inside the mutation
// transaction so the counter never drifts from the rows it summarizes.
func (f *Factory) refreshUsage(ctx context.Context, tx *gorm.DB, groupID snowflake.ID, thingType string) error {
	groupRepo := f.groupRepo.WithTx(tx)
	group, err := groupRepo.GetForUpdate(ctx, groupID)
	if err != nil {
		return apperrors.Infrastructure(err)
	}
	if group == nil {
		return apperrors.NotFound("group does not exist")
	}

	count, err := f.thingRepo.WithTx(tx).CountActiveByType(ctx, groupID, thingType)
	if err != nil {
		return apperrors.Infrastructure(err)
	}

	if group.Settings == nil {
		group.Settings = map[string]any{}
	}
	usage, _ := group.Settings["usage"].(map[string]any)
	if usage == nil {
		usage = map[string]any{}
	}
	usage[thingType] = count
	group.Settings["usage"] = usage

	if err := groupRepo.Update(ctx, *group); err != nil {
		return apperrors.Infrastructure(err)
	}
	return nil
}

// refreshChildCount recomputes the number of currently valid containment
// edges under a parent thing and stores it in the parent's properties.
func (f *Factory) refreshChildCount(ctx context.Context, tx *gorm.DB, parentID snowflake.ID) error {
	thingRepo := f.thingRepo.WithTx(tx)
	parent, err := thingRepo.GetForUpdate(ctx, parentID)
	if err != nil {
		return apperrors.Infrastructure(err)
	}
	if parent == nil {
		return apperrors.NotFound("thing does not exist")
	}

	edges, err := f.connRepo.WithTx(tx).Query(ctx, conndomain.QueryFilter{
		FromThingID:      parentID,
		RelationshipType: conndomain.RelationshipContains,
		AsOf:             f.clk.Now(),
	})
	if err != nil {
		return apperrors.Infrastructure(err)
	}

	if parent.Properties == nil {
		parent.Properties = map[string]any{}
	}
	parent.Properties["child_count"] = len(edges)
	prevVersion := parent.Version
	parent.Version++
	parent.UpdatedAt = f.clk.Now()

	ok, err := thingRepo.Update(ctx, *parent, prevVersion)
	if err != nil {
		return apperrors.Infrastructure(err)
	}
	if !ok {
		return apperrors.Conflict("thing was modified concurrently")
	}
	return nil
}

// thingGroup resolves the owning group of an existing thing. Resolution is
// unscoped; the guard decides afterwards whether the actor may see it.
func (f *Factory) thingGroup(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	thing, err := f.thingRepo.Get(ctx, id)
	if err != nil {
		return 0, apperrors.Infrastructure(err)
	}
	if thing == nil {
		return 0, apperrors.NotFound("thing does not exist")
	}
	return thing.GroupID, nil
}

func (f *Factory) connectionGroup(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	conn, err := f.connRepo.Get(ctx, id)
	if err != nil {
		return 0, apperrors.Infrastructure(err)
	}
	if conn == nil {
		return 0, apperrors.NotFound("connection does not exist")
	}
	return conn.GroupID, nil
}

func (f *Factory) personGroup(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	person, err := f.prsnRepo.Get(ctx, id)
	if err != nil {
		return 0, apperrors.Infrastructure(err)
	}
	if person == nil {
		return 0, apperrors.NotFound("person does not exist")
	}
	return person.GroupID, nil
}
