package ops

import (
	"context"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/shohq/ontology/internal/event/domain"
	"github.com/shohq/ontology/internal/guard"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"gorm.io/gorm"
)

const (
	EventPersonCreated     = "person.created"
	EventPersonRoleChanged = "person.role_changed"
	EventPersonDeactivated = "person.deactivated"
)

// CreatePerson registers an actor in a group.
type CreatePerson struct {
	f   *Factory
	req persondomain.CreatePersonRequest
}

func (f *Factory) CreatePerson(req persondomain.CreatePersonRequest) *CreatePerson {
	return &CreatePerson{f: f, req: req}
}

func (o *CreatePerson) Name() string { return "person.create" }
func (o *CreatePerson) Object() string { return guard.ObjectPerson }
func (o *CreatePerson) Action() string { return guard.ActionManage }
func (o *CreatePerson) Hierarchical() bool { return true }

func (o *CreatePerson) GroupID(ctx context.Context) (snowflake.ID, error) {
	return o.req.GroupID, nil
}

func (o *CreatePerson) Validate(ctx context.Context) error {
	if !persondomain.ValidRole(o.req.Role) {
		return apperrors.Validation("role", "unknown role")
	}
	return nil
}

func (o *CreatePerson) Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error) {
	person, err := o.f.persons.WithTx(tx).Create(ctx, o.req)
	if err != nil {
		return nil, nil, err
	}
	return person, []eventdomain.Draft{{
		Type:     EventPersonCreated,
		TargetID: person.ID,
		Metadata: map[string]any{"role": person.Role},
	}}, nil
}

func (o *CreatePerson) Aggregates(ctx context.Context, tx *gorm.DB, result any) error {
	return nil
}

// UpdatePersonRole changes an actor's role.
type UpdatePersonRole struct {
	f    *Factory
	id   snowflake.ID
	role string
}

func (f *Factory) UpdatePersonRole(id snowflake.ID, role string) *UpdatePersonRole {
	return &UpdatePersonRole{f: f, id: id, role: role}
}

func (o *UpdatePersonRole) Name() string { return "person.update_role" }
func (o *UpdatePersonRole) Object() string { return guard.ObjectPerson }
func (o *UpdatePersonRole) Action() string { return guard.ActionManage }
func (o *UpdatePersonRole) Hierarchical() bool { return true }

func (o *UpdatePersonRole) GroupID(ctx context.Context) (snowflake.ID, error) {
	return o.f.personGroup(ctx, o.id)
}

func (o *UpdatePersonRole) Validate(ctx context.Context) error {
	if !persondomain.ValidRole(o.role) {
		return apperrors.Validation("role", "unknown role")
	}
	return nil
}

func (o *UpdatePersonRole) Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error) {
	person, err := o.f.persons.WithTx(tx).UpdateRole(ctx, o.id, o.role)
	if err != nil {
		return nil, nil, err
	}
	return person, []eventdomain.Draft{{
		Type:     EventPersonRoleChanged,
		TargetID: person.ID,
		Metadata: map[string]any{"role": person.Role},
	}}, nil
}

func (o *UpdatePersonRole) Aggregates(ctx context.Context, tx *gorm.DB, result any) error {
	return nil
}

// DeactivatePerson retires an actor. Persons are never hard-deleted.
type DeactivatePerson struct {
	f  *Factory
	id snowflake.ID
}

func (f *Factory) DeactivatePerson(id snowflake.ID) *DeactivatePerson {
	return &DeactivatePerson{f: f, id: id}
}

func (o *DeactivatePerson) Name() string { return "person.deactivate" }
func (o *DeactivatePerson) Object() string { return guard.ObjectPerson }
func (o *DeactivatePerson) Action() string { return guard.ActionManage }
func (o *DeactivatePerson) Hierarchical() bool { return true }

func (o *DeactivatePerson) GroupID(ctx context.Context) (snowflake.ID, error) {
	return o.f.personGroup(ctx, o.id)
}

func (o *DeactivatePerson) Validate(ctx context.Context) error { return nil }

func (o *DeactivatePerson) Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error) {
	person, err := o.f.persons.WithTx(tx).Deactivate(ctx, o.id)
	if err != nil {
		return nil, nil, err
	}
	return person, []eventdomain.Draft{{
		Type:     EventPersonDeactivated,
		TargetID: person.ID,
		Metadata: map[string]any{"status": person.Status},
	}}, nil
}

func (o *DeactivatePerson) Aggregates(ctx context.Context, tx *gorm.DB, result any) error {
	return nil
}
