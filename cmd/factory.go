package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/browser"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/config"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/engine"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/history"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/observability"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/sessionstore"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/timing"
)

// Components holds the initialized services behind one query session. It
// centralizes lifecycle management so shutdown happens in one place, in the
// right order.
type Components struct {
	SessionStore *sessionstore.Store
	Supervisor   *browser.Supervisor
	Engine       *engine.Engine
	History      *history.Store
	DBPool       *pgxpool.Pool
}

// Shutdown releases all components. The supervisor goes first so the browser
// can persist its session state before anything else closes.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	if c.Supervisor != nil {
		c.Supervisor.Cleanup(context.Background())
	}
	if c.DBPool != nil {
		c.DBPool.Close()
	}
	logger.Debug("Components shut down.")
}

// initializeComponents wires the session store, optional history database,
// browser supervisor, and ask engine for one logical session. On failure,
// anything already created is shut down before the error is returned.
func initializeComponents(ctx context.Context, sessionID string) (*Components, error) {
	cfg := config.Get()
	logger := observability.GetLogger()

	components := &Components{}
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. On-disk session persistence.
	components.SessionStore = sessionstore.New(logger, cfg.Session.StoragePath, cfg.Session.SessionExpiry())

	// 2. Optional chat-history database.
	var recorder engine.Recorder
	if cfg.History.Enabled {
		if cfg.History.URL == "" {
			initializationErr = fmt.Errorf("history.url is not configured (hint: set PERPLEXITY_HISTORY_URL)")
			return nil, initializationErr
		}
		dbPool, err := pgxpool.New(ctx, cfg.History.URL)
		if err != nil {
			initializationErr = fmt.Errorf("failed to create database connection pool: %w", err)
			return nil, initializationErr
		}
		components.DBPool = dbPool

		hist, err := history.New(ctx, dbPool, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize history store: %w", err)
			return nil, initializationErr
		}
		if err := hist.EnsureSchema(ctx); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.History = hist
		recorder = hist
		logger.Debug("History store initialized.")
	}

	// 3. Browser supervisor and ask engine. The browser itself launches
	// lazily on the first query.
	components.Supervisor = browser.NewSupervisor(logger, cfg, components.SessionStore, sessionID)
	components.Engine = engine.New(logger, cfg, components.Supervisor, timing.NewEngine(logger), recorder, sessionID)

	return components, nil
}
