// Package app wires the memberdesk server runtime: config, logging, storage
// backends, notification transport, HTTP routes and telemetry.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"memberdesk/cmd/internal/claim"
	"memberdesk/cmd/internal/claimapi"
	"memberdesk/cmd/internal/linktoken"
	"memberdesk/cmd/internal/member"
	"memberdesk/cmd/internal/metrics"
	"memberdesk/cmd/internal/migrations"
	"memberdesk/cmd/internal/notify"
	"memberdesk/cmd/internal/records"
	"memberdesk/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns every long-lived dependency of the memberdesk server.
type App struct {
	cfg Config
	log Logger

	metrics *metrics.Metrics

	dbPool    *pgxpool.Pool
	dbEnabled bool

	issuer  *linktoken.Issuer
	handler *claimapi.Handler

	// closers run in reverse order on Close.
	closers []func(context.Context) error
}

// backends groups the storage boundaries selected by configuration.
type backends struct {
	tokens       linktoken.Store
	members      member.Directory
	documents    records.DocumentStore
	declarations records.DeclarationStore
	activity     records.ActivityLog
	files        records.FileStore
}

// New constructs a fully wired App. Callers must Close it.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	a := &App{cfg: cfg, log: log, metrics: metrics.New()}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close(context.Background())
		}
	}()

	shutdownTracing, err := InitTracing(ctx, cfg.OTelServiceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTracing)

	b, err := a.newBackends(ctx)
	if err != nil {
		return nil, err
	}

	dispatcher, err := a.newDispatcher()
	if err != nil {
		return nil, err
	}

	hasher := linktoken.DefaultHasher
	if cfg.RequireTokenHMAC {
		hasher = func(secret string) (string, error) {
			return token.HashSecretHexRequireHMAC(secret, minTokenHMACKeyBytes)
		}
	}

	a.issuer, err = linktoken.NewIssuer(b.tokens, b.members, cfg.PublicBaseURL,
		linktoken.WithIssuerLogger(log),
		linktoken.WithActivityLog(b.activity),
		linktoken.WithDispatcher(dispatcher),
		linktoken.WithIssuerMetrics(a.metrics),
		linktoken.WithHasher(hasher),
		linktoken.WithIssuerStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		return nil, err
	}

	validator, err := linktoken.NewValidator(b.tokens, b.members,
		linktoken.WithValidatorLogger(log),
		linktoken.WithValidatorMetrics(a.metrics),
		linktoken.WithValidatorHasher(hasher),
		linktoken.WithValidatorStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		return nil, err
	}

	engineOpts := []claim.Option{
		claim.WithLogger(log),
		claim.WithActivityLog(b.activity),
		claim.WithMetrics(a.metrics),
		claim.WithStoreTimeout(cfg.StoreTimeout),
	}
	upload, err := claim.NewEngine(validator, b.tokens, claim.UploadFlow(b.files, b.documents), engineOpts...)
	if err != nil {
		return nil, err
	}
	declaration, err := claim.NewEngine(validator, b.tokens, claim.DeclarationFlow(b.declarations), engineOpts...)
	if err != nil {
		return nil, err
	}

	auth, err := claimapi.NewStaffAuth(cfg.StaffJWTSecret, cfg.StaffJWTIssuer, cfg.StaffJWTAudience)
	if err != nil {
		return nil, err
	}

	limiter, err := claimapi.NewMemoryLimiter(cfg.RateLimitTokens, cfg.RateLimitInterval)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, limiter.Close)

	apiCfg := claimapi.DefaultConfig()
	apiCfg.TrustProxy = cfg.TrustProxy
	a.handler, err = claimapi.NewHandler(log, apiCfg, a.issuer, upload, declaration, auth,
		claimapi.WithRateLimiter(limiter),
	)
	if err != nil {
		return nil, err
	}
	ready = true
	return a, nil
}

// Issuer exposes the token issuer for the CLI.
func (a *App) Issuer() *linktoken.Issuer { return a.issuer }

// Run starts the HTTP server and blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled, "public_base_url", a.cfg.PublicBaseURL)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases every resource acquired by New.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Error("app.close.fail", "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newBackends picks PostgreSQL when a database URL is configured and the
// in-memory stores otherwise. Uploaded files go to S3 when a bucket is set.
func (a *App) newBackends(ctx context.Context) (backends, error) {
	var b backends

	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		rec := records.NewInMemoryStore()
		b = backends{
			tokens:       linktoken.NewInMemoryStore(),
			members:      member.NewInMemoryDirectory(),
			documents:    rec,
			declarations: rec,
			activity:     rec,
			files:        rec,
		}
	} else {
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return b, err
		}
		a.dbPool, a.dbEnabled = pool, true
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		a.log.Info("db.enabled.postgres_store")

		if a.cfg.AutoMigrate {
			if err := migrations.Up(ctx, pool); err != nil {
				return b, err
			}
			a.log.Info("db.migrate.ok")
		}

		tokens, err := linktoken.NewPostgresStore(pool)
		if err != nil {
			return b, err
		}
		members, err := member.NewPostgresDirectory(pool)
		if err != nil {
			return b, err
		}
		rec, err := records.NewPostgresStore(pool)
		if err != nil {
			return b, err
		}
		b = backends{
			tokens:       tokens,
			members:      members,
			documents:    rec,
			declarations: rec,
			activity:     rec,
			files:        records.NewInMemoryStore(),
		}
	}

	if a.cfg.S3.Bucket != "" {
		files, err := records.NewS3FileStore(ctx, a.cfg.S3)
		if err != nil {
			return b, err
		}
		b.files = files
		a.log.Info("files.s3.enabled", "bucket", a.cfg.S3.Bucket)
	} else {
		a.log.Warn("files.inmemory", "hint", "set MEMBERDESK_S3_BUCKET to persist uploads")
	}
	return b, nil
}

func (a *App) newDispatcher() (notify.Dispatcher, error) {
	if a.cfg.NATSURL == "" {
		a.log.Info("notify.log_only")
		return notify.NewLogDispatcher(a.log), nil
	}

	var opts []notify.NATSOption
	if a.cfg.NATSSubject != "" {
		opts = append(opts, notify.WithSubject(a.cfg.NATSSubject))
	}
	d, err := notify.NewNATSDispatcher(a.cfg.NATSURL, opts...)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		d.Close()
		return nil
	})
	a.log.Info("notify.nats.enabled")
	return d, nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
