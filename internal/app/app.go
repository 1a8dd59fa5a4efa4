package app

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vendsim/internal/auth"
	"vendsim/internal/config"
	"vendsim/internal/db"
	httpserver "vendsim/internal/http"
	"vendsim/internal/http/handlers"
	"vendsim/internal/http/middleware"
	"vendsim/internal/redisstore"
	"vendsim/internal/repository"
	"vendsim/internal/vending"
	"vendsim/internal/ws"
)

// App wires the vendsim dependency graph. Postgres and redis are optional:
// with an empty DSN/addr the engine runs memory-only.
type App struct {
	server       *httpserver.Server
	hub          *ws.Hub
	notifier     *vending.Notifier
	db           *sql.DB
	redisClient  *redis.Client
	logger       *zap.Logger
	cancelStream func()
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	var sqlDB *sql.DB
	var sink vending.TransactionSink
	if cfg.Database.DSN != "" {
		pool, err := db.NewPostgres(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB = pool
		sink = repository.NewTransactionRepository(pool)
	}

	var redisClient *redis.Client
	var mirror vending.SessionMirror
	if cfg.Redis.Addr != "" {
		client, err := redisstore.NewClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			if sqlDB != nil {
				sqlDB.Close()
			}
			return nil, err
		}
		redisClient = client
		mirror = redisstore.NewStore(client, cfg.SessionMirrorTTL())
	}

	catalog := vending.NewCatalog(cfg.Machine.Products)
	inventory := vending.NewInventory(cfg.Denominations(), cfg.Machine.InitialFloat)
	faults := vending.NewFaultModel()
	notifier := vending.NewNotifier(0)
	txlog := vending.NewTransactionLog(0, sink, logger)

	machine := vending.NewMachine(
		vending.MachineConfig{
			CashTimeout:       cfg.CashTimeout(),
			CardTimeout:       cfg.CardTimeout(),
			MinInsertInterval: cfg.MinInsertInterval(),
		},
		catalog, inventory, faults, txlog, notifier, mirror, logger,
	)

	hasher := auth.NewBcryptHasher(0)
	passwordHash, err := hasher.Hash(cfg.Admin.Password)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewTokenService(cfg.Admin.JWTSecret, cfg.AdminTokenTTL())

	hub := ws.NewHub(logger)
	wsServer := ws.NewServer(hub, 0, logger)

	vendHandler := handlers.NewVendHandler(machine, catalog, txlog, notifier, logger)
	adminHandler := handlers.NewAdminHandler(faults, inventory, catalog, tokens, hasher, passwordHash, logger)

	routes := httpserver.Routes{
		PaymentMethod:   vendHandler.HandlePaymentMethod,
		InsertCash:      vendHandler.HandleInsertCash,
		SelectProduct:   vendHandler.HandleSelectProduct,
		ConfirmCard:     vendHandler.HandleConfirmCard,
		Cancel:          vendHandler.HandleCancel,
		State:           vendHandler.HandleState,
		Transactions:    vendHandler.HandleTransactions,
		Notifications:   vendHandler.HandleNotifications,
		WS:              wsServer.HandleWS,
		Health:          handlers.NewHealthHandler(),
		AdminLogin:      adminHandler.HandleLogin,
		SetFault:        adminHandler.HandleSetFault,
		Faults:          adminHandler.HandleFaults,
		AdjustInventory: adminHandler.HandleAdjustInventory,
		Inventory:       adminHandler.HandleInventory,
		SetStock:        adminHandler.HandleSetStock,
		AdminAuth:       middleware.AuthMiddleware(tokens),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		hub:         hub,
		notifier:    notifier,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the notification fan-out and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	stream, cancel := a.notifier.Subscribe()
	a.cancelStream = cancel
	go a.hub.Run(ctx, stream)

	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.cancelStream != nil {
		a.cancelStream()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
