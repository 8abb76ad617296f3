// Command server runs the role-and-request authorization engine for the
// Sandoog group-savings application. With no database or Redis configured it
// runs entirely on in-memory stores.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	identityservice "sandoog/internal/identity/service"
	identitystore "sandoog/internal/identity/store"
	sessionstore "sandoog/internal/identity/store/session"
	userstore "sandoog/internal/identity/store/user"
	"sandoog/internal/identity/token"
	"sandoog/internal/platform/config"
	"sandoog/internal/platform/httpserver"
	"sandoog/internal/platform/logger"
	platformmetrics "sandoog/internal/platform/metrics"
	platformpg "sandoog/internal/platform/postgres"
	platformredis "sandoog/internal/platform/redis"
	requestsmetrics "sandoog/internal/requests/metrics"
	requestsservice "sandoog/internal/requests/service"
	requeststore "sandoog/internal/requests/store"
	"sandoog/internal/roles/classifier"
	rolesmetrics "sandoog/internal/roles/metrics"
	rolesservice "sandoog/internal/roles/service"
	rolestore "sandoog/internal/roles/store"
	transporthttp "sandoog/internal/transport/http"
	"sandoog/pkg/platform/audit"
	auditmem "sandoog/pkg/platform/audit/store/memory"
	auditpg "sandoog/pkg/platform/audit/store/postgres"
	auditworker "sandoog/pkg/platform/audit/worker"
)

func main() {
	log := logger.New()

	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := make(map[string]transporthttp.HealthCheck)

	var (
		users       identitystore.UserStore
		sessions    identitystore.SessionStore
		roleRecords rolestore.Store
		ledger      requeststore.Ledger
		auditStore  audit.Store
		txRunner    requestsservice.TxRunner
	)

	if cfg.DatabaseURL != "" {
		db, err := platformpg.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := platformpg.Migrate(ctx, db); err != nil {
			return err
		}

		users = userstore.NewPostgres(db)
		sessions = sessionstore.New()
		roleRecords = rolestore.NewPostgres(db)
		ledger = requeststore.NewPostgres(db)
		auditStore = auditpg.New(db)
		txRunner = newPostgresTxRunner(db)
		health["postgres"] = func(ctx context.Context) error { return platformpg.Health(ctx, db) }
		log.Info("using postgres stores")
	} else {
		users = userstore.New()
		sessions = sessionstore.New()
		roleRecords = rolestore.NewInMemory()
		ledger = requeststore.NewInMemory()
		auditStore = auditmem.New()
		txRunner = requestsservice.NewMemoryTxRunner()
		log.Info("no database configured, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = sessionstore.NewRedis(redisClient.Client)
		health["redis"] = redisClient.Health
		log.Info("using redis session store")
	}

	// Lifecycle events flow through a background worker; decision events
	// write inline so they can join the approval transaction.
	auditInbox := make(chan audit.Event, 256)
	asyncAuditor := audit.NewAsyncPublisher(auditInbox)
	syncAuditor := audit.NewPublisher(auditStore)
	worker := auditworker.NewWorker(auditStore, auditInbox)

	m := platformmetrics.New()
	rule := classifier.New(cfg.PrivilegedDomain)
	tokens := token.NewService(cfg.JWTSigningKey, "sandoog")

	identities := identityservice.NewService(users, sessions, tokens, asyncAuditor, log,
		identityservice.WithTokenTTL(cfg.TokenTTL),
		identityservice.WithSessionTTL(cfg.SessionTTL),
	)
	roles := rolesservice.NewService(identities, roleRecords, rule, syncAuditor, rolesmetrics.New(), log)
	requests := requestsservice.NewService(ledger, roleRecords, rule, txRunner, syncAuditor, requestsmetrics.New(), log)

	router := transporthttp.NewRouter(transporthttp.Dependencies{
		Logger:         log,
		Metrics:        m,
		Identities:     identities,
		Roles:          roles,
		Requests:       requests,
		TokenValidator: token.NewMiddlewareAdapter(tokens),
		Health:         health,
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("server starting", "addr", cfg.Addr, "privileged_domain", cfg.PrivilegedDomain)
	return httpserver.Run(ctx, srv, cfg.ShutdownTimeout, worker.Run)
}
