// Package server wires the Rollcall server together: storage, identifier
// allocation, provisioning, triggers and the gRPC endpoint. It runs schema
// migrations, bootstraps the first admin and shuts down gracefully.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/rollcall/internal/idalloc"
	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/dmitrijs2005/rollcall/internal/server/config"
	"github.com/dmitrijs2005/rollcall/internal/server/identity"
	"github.com/dmitrijs2005/rollcall/internal/server/messaging"
	"github.com/dmitrijs2005/rollcall/internal/server/notify"
	"github.com/dmitrijs2005/rollcall/internal/server/repositories/counters"
	"github.com/dmitrijs2005/rollcall/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/rollcall/internal/server/search"
	"github.com/dmitrijs2005/rollcall/internal/server/services"
	"github.com/dmitrijs2005/rollcall/internal/server/triggers"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/rollcall/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger

	db      *sql.DB
	redis   *redis.Client
	router  *triggers.Router
	auth    *services.AuthService
	grpc    *gs.GRPCServer
	closers []io.Closer
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger := logging.NewJSON(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	if c.CounterBackend == config.BackendRedis || c.MessagingBackend == config.MessagingRedis {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		app.closers = append(app.closers, app.redis)
	}

	allocator, err := app.newAllocator(rm)
	if err != nil {
		app.Close()
		return nil, err
	}

	var index search.Index
	if c.SearchEnabled {
		client, err := search.NewS3Client(ctx, search.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("search init error: %w", err)
		}
		index = search.NewS3Index(client, c.S3Bucket)
	}

	docs := rm.Documents(db)
	idp := identity.NewProvider(rm.Credentials(db), identity.WithLogger(logger))

	app.router = triggers.NewRouter(logger)
	notifier := notify.New(app.newGateway(), docs, logger)
	if err := notifier.Register(app.router); err != nil {
		app.Close()
		return nil, fmt.Errorf("trigger init error: %w", err)
	}

	provisioner := services.NewProvisioner(idp, allocator, docs, index, profiles(c), logger)
	app.auth = services.NewAuthService(idp, provisioner, []byte(c.SecretKey), c.AccessTokenValidityDuration, logger)

	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, gs.Deps{
		Accounts:  provisioner,
		Auth:      app.auth,
		Counters:  allocator,
		Documents: services.NewDocumentService(docs, app.router, logger),
	}, c.SecretKey)

	return app, nil
}

func (app *App) newAllocator(rm *repomanager.PostgresRepositoryManager) (*idalloc.Allocator, error) {
	c := app.config

	var store idalloc.Store
	switch c.CounterBackend {
	case config.BackendRedis:
		store = counters.NewRedisStore(app.redis, c.RedisKeyPrefix)
	case config.BackendMemory:
		store = idalloc.NewMemoryStore()
	default:
		store = rm.Counters(app.db)
	}

	a, err := idalloc.New(c.AllocationStrategy, store,
		idalloc.WithDefaultPadWidth(c.PadWidth),
		idalloc.WithMaxAttempts(c.AllocationMaxAttempts),
		idalloc.WithBackoff(c.AllocationBackoff),
		idalloc.WithLogger(app.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("allocator init error: %w", err)
	}
	return a, nil
}

func (app *App) newGateway() messaging.Gateway {
	var g messaging.Gateway
	switch app.config.MessagingBackend {
	case config.MessagingRedis:
		g = messaging.NewRedisGateway(app.redis, app.config.PushChannelPrefix)
	default:
		g = messaging.NewLogGateway(app.logger)
	}
	if app.config.PushRatePerSecond > 0 {
		g = messaging.NewRateLimited(g, app.config.PushRatePerSecond, app.config.PushBurst)
	}
	return g
}

// profiles converts configured role profiles into provisioning options.
func profiles(c *config.Config) map[string]services.ProvisionOptions {
	out := make(map[string]services.ProvisionOptions, len(c.Profiles))
	for role, p := range c.Profiles {
		out[role] = services.ProvisionOptions{
			Namespace:         p.Namespace,
			Prefix:            p.Prefix,
			Collection:        p.Collection,
			ExtraFields:       p.ExtraFields,
			MirrorToIndex:     p.MirrorToIndex && c.SearchEnabled,
			IndexName:         c.SearchIndexName,
			AssignClaimIfRole: p.AssignClaimIfRole,
		}
	}
	return out
}

// Close releases connections. It is safe to call more than once.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i].Close())
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) bootstrapAdmin(ctx context.Context) error {
	c := app.config
	if c.BootstrapAdminEmail == "" {
		return nil
	}
	acc, err := app.auth.BootstrapAdmin(ctx, c.BootstrapAdminEmail, c.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if acc != nil {
		app.logger.Info(ctx, "bootstrap admin created", "uid", acc.UID, "user_id", acc.UserID)
	}
	return nil
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// waitTriggers waits for in-flight notifications, at most timeout.
func (app *App) waitTriggers(ctx context.Context, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		app.router.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		app.logger.Warn(ctx, "shutdown timeout, dropping pending notifications")
	}
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Close()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.bootstrapAdmin(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.waitTriggers(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
	app.logger.Info(ctx, "App stopped")
	return nil
}
