package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
)

// Repository persists accounts. Lookups return common.ErrorNotFound when no
// row matches; writes that hit a unique column return common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByProvider(ctx context.Context, provider models.Provider, subject string) (*models.Account, error)
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
}
