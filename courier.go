// Package courier is the real-time direct-messaging core of the booking
// platform. The platform embeds it as a library: Open wires the store,
// the realtime channel and the projections, and hands back the session
// service the UI layer talks to.
package courier

import (
	"context"
	"fmt"
	"log/slog"

	"courier/auth"
	"courier/directory"
	"courier/internal"
	"courier/moderation"
	"courier/projection"
	"courier/repositories"
	"courier/runtime"
	"courier/runtime/workers"
	"courier/search"
	"courier/services"
	"courier/sink"

	"github.com/dgraph-io/badger/v4"
)

// Config aliases the environment-driven configuration so embedders can
// construct it; internal packages are not importable from outside.
type Config = internal.Config

// LoadConfig reads configuration from an optional .env file and the
// process environment.
func LoadConfig() (Config, error) {
	return internal.Load()
}

// Core holds the wired messaging subsystem and its resources.
type Core struct {
	Log      *slog.Logger
	Sessions *services.SessionService

	db           *badger.DB
	index        *search.Index
	orchestrator *runtime.Orchestrator
	cancel       context.CancelFunc
}

// Open builds the messaging core from configuration. bannedTerms feeds
// the moderation masker; the platform curates the list. The returned
// Core must be closed to release the store and the search index.
func Open(cfg Config, bannedTerms []string) (*Core, error) {
	log := internal.NewLogger(cfg.LogLevel)

	maskChar, err := cfg.MaskRune()
	if err != nil {
		return nil, err
	}
	masker, err := moderation.NewMasker(bannedTerms, maskChar)
	if err != nil {
		return nil, fmt.Errorf("building moderation masker: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("message store opening failed: %w", err)
	}
	repository := repositories.NewMessageRepository(db, log, cfg.LimitMessages)

	dir, err := directory.NewRedisDirectory(cfg.RedisAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	index, err := search.Open(cfg.BlugeFilepath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	registry := runtime.NewRegistry()
	supervisor := workers.NewSupervisor(log, cfg.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, supervisor, registry,
		cfg.BufferSize, cfg.SinkTimeout)
	orchestrator.Add(sink.NewSearchSink(index, repository, log))

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator.Start(ctx)

	tracker := projection.NewUnreadTracker(repository, log,
		cfg.RefreshRetries, cfg.RefreshBackoff)
	resolver := projection.NewResolver(repository, dir, orchestrator, log,
		cfg.RefreshRetries, cfg.RefreshBackoff)
	receipts := services.NewReadReceiptManager(repository, orchestrator, log)
	tokens := auth.NewTokenManager(cfg.AuthSecret, cfg.AuthTokenDuration)

	sessions := services.NewSessionService(log, repository, dir, orchestrator,
		tracker, resolver, receipts, masker, tokens, index, cfg.SessionBufferSize)

	return &Core{
		Log:          log,
		Sessions:     sessions,
		db:           db,
		index:        index,
		orchestrator: orchestrator,
		cancel:       cancel,
	}, nil
}

// Close stops the supervised workers and releases the store and index.
func (c *Core) Close() error {
	c.cancel()
	c.orchestrator.Stop()
	if err := c.index.Close(); err != nil {
		c.Log.Warn("Closing search index failed", "error", err)
	}
	return c.db.Close()
}
