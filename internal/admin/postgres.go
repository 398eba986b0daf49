package admin

import (
	"context"
	"database/sql"
	"os"

	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/wellkeeper/internal/server/services"
)

// PostgresBackend runs admin operations through the subscription engine.
type PostgresBackend struct {
	*services.SubscriptionService
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewPostgresBackend(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *PostgresBackend {
	return &PostgresBackend{
		SubscriptionService: services.NewSubscriptionService(db, m, nil, nil, logger.With("module", "admin")),
		db:                  db,
		repomanager:         m,
	}
}

// OpenPostgres is the production Opener.
func OpenPostgres(ctx context.Context, dsn string) (Backend, error) {
	db, err := repomanager.OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	logger := logging.NewJSONLogger(os.Stderr, "warn")
	return NewPostgresBackend(db, repomanager.NewPostgresRepositoryManager(), logger), nil
}

func (b *PostgresBackend) Migrate(ctx context.Context) error {
	return b.repomanager.RunMigrations(ctx, b.db)
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
