// Package server wires the Wellkeeper identity and entitlement services
// together and runs the HTTP API and the gRPC health endpoint until a
// shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/wellkeeper/internal/cryptox"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/config"
	"github.com/dmitrijs2005/wellkeeper/internal/server/federation"
	"github.com/dmitrijs2005/wellkeeper/internal/server/gateway"
	"github.com/dmitrijs2005/wellkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/wellkeeper/internal/server/limiter"
	"github.com/dmitrijs2005/wellkeeper/internal/server/mail"
	"github.com/dmitrijs2005/wellkeeper/internal/server/receipts"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/wellkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/wellkeeper/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	handler *httpapi.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	hasher := cryptox.NewPasswordHasher(c.BcryptCost)
	tokens := services.NewTokenIssuer(rm, c)

	apple := federation.NewAppleVerifier(c.AppleClientID, federation.NewKeyCache(c.AppleKeysURL, nil), logger)
	google := federation.NewGoogleVerifier(c.GoogleTokenInfoURL, c.GoogleClientIDs(), logger)

	var throttle services.ResetThrottle
	if c.RedisAddr != "" {
		rdb, err := limiter.NewRedisClient(ctx, c.RedisAddr)
		if err != nil {
			logger.Warn(ctx, "redis unavailable, reset throttle disabled", "error", err)
		} else {
			throttle = limiter.NewResetLimiter(rdb, c.ResetRequestLimit, c.ResetRequestWindow)
		}
	}

	var archive services.ReceiptArchive
	if c.S3Bucket != "" {
		s3a, err := receipts.NewS3Archive(ctx, c)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("receipt archive init error: %w", err)
		}
		archive = s3a
	}

	authService := services.NewAuthService(db, rm, hasher, tokens, logger)
	identityService := services.NewIdentityService(db, rm, tokens, apple, google, logger)
	passwordService := services.NewPasswordService(db, rm, hasher, mail.NewLogMailer(logger), throttle, c, logger)
	subscriptionService := services.NewSubscriptionService(db, rm, gateway.NewHTTPClient(c.GatewayBaseURL, c.GatewayAPIKey, logger), archive, logger)

	h := httpapi.NewHandler(authService, identityService, passwordService, subscriptionService, c.WebhookSecret, logger)

	return &App{config: c, logger: logger, db: db, handler: h}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.handler.Router(), app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db, 0)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
