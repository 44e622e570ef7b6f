// Command server runs the hawkgate authentication gateway.
//
// Configuration is read from a YAML file and HAWKGATE_* environment
// variables. See pkg/config for the full list.
//
//	server -config /etc/hawkgate/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/rhuss/hawkgate/pkg/auth"
	"github.com/rhuss/hawkgate/pkg/auth/hawk"
	"github.com/rhuss/hawkgate/pkg/config"
	"github.com/rhuss/hawkgate/pkg/debug"
	"github.com/rhuss/hawkgate/pkg/operator"
	"github.com/rhuss/hawkgate/pkg/operator/apikey"
	"github.com/rhuss/hawkgate/pkg/operator/jwt"
	"github.com/rhuss/hawkgate/pkg/storage"
	"github.com/rhuss/hawkgate/pkg/storage/memory"
	"github.com/rhuss/hawkgate/pkg/storage/postgres"
	"github.com/rhuss/hawkgate/pkg/storage/sqlite"
	transporthttp "github.com/rhuss/hawkgate/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedStore(store, cfg.Credentials.Static); err != nil {
		return err
	}

	authn := hawk.New(hawk.Config{
		NonceTTL:       cfg.Hawk.NonceTTL,
		NonceCacheSize: cfg.Hawk.NonceCacheSize,
		Logger:         logger,
	})
	defer authn.Close()

	opts := auth.Options{Host: cfg.Hawk.Host}
	if cfg.Hawk.Port != 0 {
		opts.Port = strconv.Itoa(cfg.Hawk.Port)
	}
	guard, err := auth.NewGuard(auth.GuardConfig{
		Authenticator:  authn,
		Resolver:       store,
		Options:        opts,
		TrustForwarded: cfg.Hawk.TrustForwarded,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	operators, err := operatorChain(cfg.Operator)
	if err != nil {
		return err
	}

	routes := &transporthttp.Routes{
		Guard:       guard,
		Minter:      authn,
		Store:       store,
		Operators:   operators,
		MaxBewitTTL: cfg.Hawk.MaxBewitTTL,
		Logger:      logger,
	}
	if cfg.RateLimit.RequestsPerMinute > 0 || len(cfg.RateLimit.Overrides) > 0 {
		routes.Limiter = auth.NewInProcessLimiter(cfg.RateLimit.Overrides, cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.Observability.Metrics.Enabled {
		routes.MetricsPath = cfg.Observability.Metrics.Path
	}

	srv := transporthttp.NewServer(routes.Handler(),
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	)

	logger.Info("hawkgate configured",
		"store", cfg.Credentials.Store,
		"operator", cfg.Operator.Type,
		"static_credentials", len(cfg.Credentials.Static),
		"hawk_host", cfg.Hawk.Host,
		"trust_forwarded", cfg.Hawk.TrustForwarded,
		"debug", debug.Categories(),
	)
	return srv.ListenAndServe()
}

func openStore(cfg *config.Config) (storage.CredentialStore, error) {
	switch cfg.Credentials.Store {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Credentials.Postgres.DSN,
			MaxConns:       cfg.Credentials.Postgres.MaxConns,
			MigrateOnStart: cfg.Credentials.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres credential store: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.New(cfg.Credentials.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite credential store: %w", err)
		}
		return store, nil
	default:
		store, err := memory.New()
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// seedStore upserts the credentials declared in configuration, so a
// restart picks up rotated keys.
func seedStore(store storage.CredentialStore, static []config.StaticCredential) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range static {
		err := store.Put(ctx, &auth.Credentials{
			ID:        s.ID,
			Key:       s.Key,
			Algorithm: s.Algorithm,
			User:      s.User,
		})
		if err != nil {
			return fmt.Errorf("seeding credential %q: %w", s.ID, err)
		}
	}
	return nil
}

func operatorChain(cfg config.OperatorConfig) (*operator.Chain, error) {
	switch cfg.Type {
	case "apikey":
		entries := make([]apikey.Entry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			entries = append(entries, apikey.Entry{Key: k.Key, Subject: k.Subject, Scopes: k.Scopes})
		}
		return operator.NewChain(apikey.New(entries)), nil
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Secret:      []byte(cfg.JWT.Secret),
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			ScopesClaim: cfg.JWT.ScopesClaim,
			Leeway:      cfg.JWT.Leeway,
		})
		if err != nil {
			return nil, err
		}
		return operator.NewChain(a), nil
	case "none":
		return nil, nil
	default:
		return nil, errors.New("unknown operator type " + strconv.Quote(cfg.Type))
	}
}
