package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	authdomain "github.com/shohq/ontology/internal/auth/domain"
	conndomain "github.com/shohq/ontology/internal/connection/domain"
	eventdomain "github.com/shohq/ontology/internal/event/domain"
	groupdomain "github.com/shohq/ontology/internal/group/domain"
	knowdomain "github.com/shohq/ontology/internal/knowledge/domain"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	thingdomain "github.com/shohq/ontology/internal/thing/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded SQL migrations against postgres. All
// core tables are created automatically on startup so a fresh install is
// usable out of the box.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate builds the schema through gorm for sqlite and mysql, where the
// embedded postgres migrations do not apply.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&groupdomain.Group{},
		&persondomain.Person{},
		&thingdomain.Thing{},
		&conndomain.Connection{},
		&eventdomain.Event{},
		&knowdomain.Chunk{},
		&authdomain.AccessToken{},
	)
}
