package guard

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// NewEnforcer builds the casbin enforcer backed by the shared database.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// seedPolicies installs the role/operation matrix. platform_owner never
// reaches the enforcer (bypassed in the guard) but is seeded for completeness.
// customer has no write rows: writes default-deny.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleSubject(persondomain.RolePlatformOwner), "*", "*", "*"},

		{roleSubject(persondomain.RoleOrgOwner), "*", "*", "*"},

		{roleSubject(persondomain.RoleOrgUser), "*", ObjectThing, "*"},
		{roleSubject(persondomain.RoleOrgUser), "*", ObjectConnection, "*"},
		{roleSubject(persondomain.RoleOrgUser), "*", ObjectKnowledge, "*"},
		{roleSubject(persondomain.RoleOrgUser), "*", ObjectEvent, ActionRead},
		{roleSubject(persondomain.RoleOrgUser), "*", ObjectGroup, ActionRead},
		{roleSubject(persondomain.RoleOrgUser), "*", ObjectPerson, ActionRead},

		{roleSubject(persondomain.RoleCustomer), "*", ObjectThing, ActionRead},
		{roleSubject(persondomain.RoleCustomer), "*", ObjectConnection, ActionRead},
		{roleSubject(persondomain.RoleCustomer), "*", ObjectKnowledge, ActionRead},
	}

	for _, p := range policies {
		has, err := enforcer.HasPolicy(p[0], p[1], p[2], p[3])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2], p[3]); err != nil {
			return err
		}
	}
	return nil
}
