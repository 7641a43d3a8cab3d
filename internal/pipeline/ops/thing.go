package ops

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/shohq/ontology/internal/event/domain"
	"github.com/shohq/ontology/internal/guard"
	thingdomain "github.com/shohq/ontology/internal/thing/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"gorm.io/gorm"
)

const (
	EventThingCreated       = "thing.created"
	EventThingUpdated       = "thing.updated"
	EventThingArchived      = "thing.archived"
	EventThingStatusChanged = "thing.status_changed"
)

// CreateThing creates a thing and refreshes the group's per-type usage
// counter.
type CreateThing struct {
	f   *Factory
	req thingdomain.CreateThingRequest
}

func (f *Factory) CreateThing(req thingdomain.CreateThingRequest) *CreateThing {
	return &CreateThing{f: f, req: req}
}

func (o *CreateThing) Name() string { return "thing.create" }
func (o *CreateThing) Object() string { return guard.ObjectThing }
func (o *CreateThing) Action() string { return guard.ActionCreate }
func (o *CreateThing) Hierarchical() bool { return true }

func (o *CreateThing) GroupID(ctx context.Context) (snowflake.ID, error) {
	return o.req.GroupID, nil
}

func (o *CreateThing) Validate(ctx context.Context) error {
	if strings.TrimSpace(o.req.Type) == "" {
		return apperrors.Validation("type", "type is required")
	}
	if strings.TrimSpace(o.req.Name) == "" {
		return apperrors.Validation("name", "name is required")
	}
	return nil
}

func (o *CreateThing) Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error) {
	thing, err := o.f.things.WithTx(tx).Create(ctx, o.req)
	if err != nil {
		return nil, nil, err
	}
	return thing, []eventdomain.Draft{{
		Type:     EventThingCreated,
		TargetID: thing.ID,
		Metadata: map[string]any{"type": thing.Type, "name": thing.Name},
	}}, nil
}

func (o *CreateThing) Aggregates(ctx context.Context, tx *gorm.DB, result any) error {
	thing := result.(*thingdomain.Thing)
	return o.f.refreshUsage(ctx, tx, thing.GroupID, thing.Type)
}

// PatchThing merges a property delta under optimistic concurrency.
type PatchThing struct {
	f               *Factory
	id              snowflake.ID
	delta           map[string]any
	expectedVersion int64
}

func (f *Factory) PatchThing(id snowflake.ID, delta map[string]any, expectedVersion int64) *PatchThing {
	return &PatchThing{f: f, id: id, delta: delta, expectedVersion: expectedVersion}
}

func (o *PatchThing) Name() string { return "thing.patch" }
func (o *PatchThing) Object() string { return guard.ObjectThing }
func (o *PatchThing) Action() string { return guard.ActionUpdate }
func (o *PatchThing) Hierarchical() bool { return false }

func (o *PatchThing) GroupID(ctx context.Context) (snowflake.ID, error) {
	return o.f.thingGroup(ctx, o.id)
}

func (o *PatchThing) Validate(ctx context.Context) error {
	if len(o.delta) == 0 {
		return apperrors.Validation("delta", "empty delta")
	}
	return nil
}

func (o *PatchThing) Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error) {
	thing, err := o.f.things.WithTx(tx).Patch(ctx, o.id, o.delta, o.expectedVersion)
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, len(o.delta))
	for k := range o.delta {
		keys = append(keys, k)
	}
	return thing, []eventdomain.Draft{{
		Type:     EventThingUpdated,
		TargetID: thing.ID,
		Metadata: map[string]any{"keys": keys, "version": thing.Version},
	}}, nil
}

func (o *PatchThing) Aggregates(ctx context.Context, tx *gorm.DB, result any) error {
	return nil
}

// ArchiveThing retires a thing. Archiving an archived thing still records
// the attempt but changes nothing.
type ArchiveThing struct {
	f  *Factory
	id snowflake.ID
}

func (f *Factory) ArchiveThing(id snowflake.ID) *ArchiveThing {
	return &ArchiveThing{f: f, id: id}
}

func (o *ArchiveThing) Name() string { return "thing.archive" }
func (o *ArchiveThing) Object() string { return guard.ObjectThing }
func (o *ArchiveThing) Action() string { return guard.ActionArchive }
func (o *ArchiveThing) Hierarchical() bool { return false }

func (o *ArchiveThing) GroupID(ctx context.Context) (snowflake.ID, error) {
	return o.f.thingGroup(ctx, o.id)
}

func (o *ArchiveThing) Validate(ctx context.Context) error { return nil }

func (o *ArchiveThing) Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error) {
	thing, err := o.f.things.WithTx(tx).Archive(ctx, o.id)
	if err != nil {
		return nil, nil, err
	}
	return thing, []eventdomain.Draft{{
		Type:     EventThingArchived,
		TargetID: thing.ID,
		Metadata: map[string]any{"type": thing.Type},
	}}, nil
}

func (o *ArchiveThing) Aggregates(ctx context.Context, tx *gorm.DB, result any) error {
	thing := result.(*thingdomain.Thing)
	return o.f.refreshUsage(ctx, tx, thing.GroupID, thing.Type)
}

// SetThingStatus moves a thing through its status lifecycle.
type SetThingStatus struct {
	f      *Factory
	id     snowflake.ID
	status string
}

func (f *Factory) SetThingStatus(id snowflake.ID, status string) *SetThingStatus {
	return &SetThingStatus{f: f, id: id, status: status}
}

func (o *SetThingStatus) Name() string { return "thing.set_status" }
func (o *SetThingStatus) Object() string { return guard.ObjectThing }
func (o *SetThingStatus) Action() string { return guard.ActionUpdate }
func (o *SetThingStatus) Hierarchical() bool { return false }

func (o *SetThingStatus) GroupID(ctx context.Context) (snowflake.ID, error) {
	return o.f.thingGroup(ctx, o.id)
}

func (o *SetThingStatus) Validate(ctx context.Context) error {
	if !thingdomain.ValidStatus(o.status) {
		return apperrors.Validation("status", "unknown status")
	}
	return nil
}

func (o *SetThingStatus) Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error) {
	thing, err := o.f.things.WithTx(tx).SetStatus(ctx, o.id, o.status)
	if err != nil {
		return nil, nil, err
	}
	return thing, []eventdomain.Draft{{
		Type:     EventThingStatusChanged,
		TargetID: thing.ID,
		Metadata: map[string]any{"status": thing.Status},
	}}, nil
}

func (o *SetThingStatus) Aggregates(ctx context.Context, tx *gorm.DB, result any) error {
	return nil
}
