// Package postgresql provides PostgreSQL persistence for sequences.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/cadencehq/cadence/pkg/persistence"
	"github.com/cadencehq/cadence/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence backed by PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	sequenceRepo *SequenceRepository
}

// NewPersistence connects to the database, runs migrations, and returns the
// ready persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, sequenceMigrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run sequence migrations: %w", err)
	}

	logger.InfoContext(ctx, "Sequence PostgreSQL persistence initialized successfully")

	return &Persistence{
		db:           database,
		logger:       logger.With("component", "sequence_postgres_persistence"),
		sequenceRepo: NewSequenceRepository(database, logger),
	}, nil
}

func (p *Persistence) SequenceRepository() persistence.SequenceRepository {
	return p.sequenceRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}
