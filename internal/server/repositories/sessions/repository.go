package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
)

// Repository stores refresh-token sessions keyed by token digest. Deleting
// a row is the only way a session is revoked.
type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	// Consume atomically deletes the unexpired session holding tokenHash and
	// returns its account id. An absent or expired row yields
	// common.ErrorNotFound and is left untouched.
	Consume(ctx context.Context, tokenHash string, now time.Time) (string, error)
	DeleteByHash(ctx context.Context, tokenHash string) error
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
}
