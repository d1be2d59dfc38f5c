// Package store is the local sqlite database of synced records.
package store

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/trackd/internal/db"
	"github.com/openmined/trackd/internal/models"
)

type Store struct {
	db *sqlx.DB

	Users       *Repository[models.User]
	Workspaces  *Repository[models.Workspace]
	Clients     *Repository[models.Client]
	Projects    *Repository[models.Project]
	Tasks       *Repository[models.Task]
	Tags        *Repository[models.Tag]
	TimeEntries *Repository[models.TimeEntry]
	Settings    *Settings

	// DeviceSettings survive Clear
	DeviceSettings *Settings
}

// Open opens the database described by opts and makes sure every table exists
func Open(opts ...db.SqliteOption) (*Store, error) {
	opts = append(opts, db.WithSchema(schema()))
	database, err := db.NewSqliteDB(opts...)
	if err != nil {
		return nil, err
	}
	return New(database), nil
}

// New wraps an already initialized database
func New(database *sqlx.DB) *Store {
	return &Store{
		db:          database,
		Users:       newRepository[models.User](database),
		Workspaces:  newRepository[models.Workspace](database),
		Clients:     newRepository[models.Client](database),
		Projects:    newRepository[models.Project](database),
		Tasks:       newRepository[models.Task](database),
		Tags:        newRepository[models.Tag](database),
		TimeEntries: newRepository[models.TimeEntry](database),
		Settings:    &Settings{db: database, table: sessionSettingsTable},

		DeviceSettings: &Settings{db: database, table: deviceSettingsTable},
	}
}

// Clear wipes every record and the session settings in one transaction
func (s *Store) Clear(ctx context.Context) error {
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		clears := []func(context.Context, sqlx.ExecerContext) error{
			s.Users.clear,
			s.Workspaces.clear,
			s.Clients.clear,
			s.Projects.clear,
			s.Tasks.clear,
			s.Tags.clear,
			s.TimeEntries.clear,
			s.Settings.clear,
		}
		for _, clearFn := range clears {
			if err := clearFn(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("store cleared")
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
