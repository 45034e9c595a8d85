package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lighthouse-crm/internal/accounts"
	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/auth"
	"lighthouse-crm/internal/authcache"
	"lighthouse-crm/internal/config"
	"lighthouse-crm/internal/directory/mongostore"
	"lighthouse-crm/internal/httpapi"
	"lighthouse-crm/internal/identity"
	"lighthouse-crm/internal/metrics"
	"lighthouse-crm/internal/orgs"
	"lighthouse-crm/internal/rbac"
	"lighthouse-crm/internal/records"
	"lighthouse-crm/pkg/utils"
)

const cacheSweepInterval = time.Minute

type deps struct {
	metrics  *metrics.Metrics
	handlers httpapi.Handlers
}

// buildDeps opens the backing stores and wires the services. The returned
// cleanup releases connections in reverse order of opening.
func buildDeps(ctx context.Context, cfg config.Config, log *slog.Logger) (deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (deps, func(), error) {
		cleanup()
		return deps{}, nil, err
	}

	client, db, err := utils.OpenMongo(ctx, utils.MongoConfig{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = client.Disconnect(context.Background()) })

	store := mongostore.New(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		return fail(err)
	}

	m := metrics.New()

	cache, closeCache, err := openCache(ctx, cfg, m, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeCache)

	activity, closeActivity, err := openActivity(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeActivity)

	verifier, err := newVerifier(cfg, log)
	if err != nil {
		return fail(err)
	}

	resolver := accounts.NewResolver(store, activity, cfg.Tenancy.PublicDomains, log)
	h := httpapi.Handlers{
		Auth:     auth.NewAuthenticator(verifier, resolver, cache, cfg.Cache.TTL, m, log),
		Gate:     rbac.NewGate(store, m),
		Orgs:     orgs.NewService(store, cache, activity, log),
		Records:  records.NewService(store.Records(), store.Organizations(), activity),
		Activity: activity,
	}
	return deps{metrics: m, handlers: h}, cleanup, nil
}

func openCache(ctx context.Context, cfg config.Config, m *metrics.Metrics, log *slog.Logger) (authcache.Cache, func(), error) {
	switch cfg.Cache.Driver {
	case "none":
		return authcache.Noop{}, func() {}, nil
	case "redis":
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return nil, nil, err
		}
		c := authcache.NewRedis(rdb, authcache.RedisOptions{
			TTL: cfg.Cache.TTL,
			Log: log,
			OnError: func(op string, _ error) {
				if op == "lookup" {
					m.IncAuthCacheLookup("error")
				}
			},
		})
		return c, func() { _ = rdb.Close() }, nil
	default:
		mem := authcache.NewMemory(cfg.Cache.TTL)
		go mem.Run(ctx, cacheSweepInterval)
		return mem, func() {}, nil
	}
}

func openActivity(ctx context.Context, cfg config.Config, log *slog.Logger) (*audit.Service, func(), error) {
	if cfg.Audit.DSN == "" {
		return audit.NewService(audit.NewMemoryRepo(), log), func() {}, nil
	}
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.Audit.DSN, utils.PostgresPoolConfig{})
	if err != nil {
		return nil, nil, err
	}
	repo := audit.NewPostgresRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("audit schema: %w", err)
	}
	return audit.NewService(repo, log), func() { _ = db.Close() }, nil
}

// newVerifier picks the shared-secret verifier when one is configured (local
// and dev only) and the provider's key set otherwise.
func newVerifier(cfg config.Config, log *slog.Logger) (identity.Verifier, error) {
	opts := identity.Options{
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
		Timeout:  cfg.Identity.Timeout,
	}

	var v identity.Verifier
	if cfg.Identity.HMACSecret != "" {
		hv, err := identity.NewHMACVerifier([]byte(cfg.Identity.HMACSecret), opts)
		if err != nil {
			return nil, err
		}
		v = hv
	} else {
		v = identity.NewJWKSVerifier(cfg.Identity.JWKSURL, &http.Client{Timeout: cfg.Identity.Timeout}, opts)
	}

	if cfg.Identity.AllowUnverified {
		log.Warn("unverified identity fallback enabled")
		v = identity.WithUnverifiedFallback(v, log)
	}
	return v, nil
}
