package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/devices"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/subscriptions"
)

// RepositoryManager vends repositories bound to a *sql.DB or a *sql.Tx, so
// a service can run several of them inside one dbx.WithTx call.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Subscriptions(db dbx.DBTX) subscriptions.Repository
	Devices(db dbx.DBTX) devices.Repository
}
