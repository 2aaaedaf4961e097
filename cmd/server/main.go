package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/acVeli/phaserGame/internal/config"
	"github.com/acVeli/phaserGame/internal/core/event"
	"github.com/acVeli/phaserGame/internal/data"
	"github.com/acVeli/phaserGame/internal/logging"
	"github.com/acVeli/phaserGame/internal/persist"
	"github.com/acVeli/phaserGame/internal/server"
	"github.com/acVeli/phaserGame/internal/world"
)

const busInterval = 100 * time.Millisecond

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting",
		zap.String("name", cfg.Server.Name),
		zap.String("bind", cfg.Server.BindAddress),
	)

	ctx := context.Background()

	// Durable store: PostgreSQL when enabled, in-memory otherwise. The
	// in-memory fallback keeps local development database-free; positions
	// then live only as long as the process.
	var store persist.PositionStore = persist.NewMemoryStore()
	var gold server.GoldStore
	var inventory server.InventoryStore
	if cfg.Database.Enabled {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := persist.RunMigrations(ctx, db); err != nil {
			return err
		}
		store = persist.NewPositionRepo(db)
		gold = persist.NewGoldRepo(db)
		inventory = persist.NewInventoryRepo(db)
	} else {
		log.Warn("database disabled, positions are not durable")
	}

	spawns, err := data.LoadSpawnTable(cfg.Game.SpawnTable)
	if err != nil {
		return err
	}
	log.Info("spawn table loaded", zap.Int("scenes", spawns.Count()))

	bus := event.NewBus()
	saver := persist.NewSaver(store, cfg.Persistence.QueueSize, cfg.Persistence.FlushTimeout, log)
	saver.OnSaved = func(charID string, pos persist.Position) {
		bus.Emit(event.PositionSaved{CharID: charID, X: pos.X, Y: pos.Y})
	}

	deps := &server.Deps{
		Registry:  world.NewRegistry(),
		Store:     store,
		Saver:     saver,
		Hub:       server.NewHub(),
		Spawns:    spawns,
		Scene:     cfg.Game.Scene,
		Bus:       bus,
		Metrics:   &server.Metrics{},
		Log:       log,
		Gold:      gold,
		Inventory: inventory,
	}
	deps.Router = server.NewRouter(deps.Hub, deps.Metrics, log)

	event.Subscribe(bus, func(ev event.PlayerJoined) {
		log.Info("player joined",
			zap.String("char_id", ev.CharID),
			zap.String("name", ev.Name),
			zap.Float64("x", ev.X),
			zap.Float64("y", ev.Y),
		)
	})
	event.Subscribe(bus, func(ev event.PlayerLeft) {
		log.Info("player left",
			zap.String("char_id", ev.CharID),
			zap.Bool("evicted", ev.Evicted),
		)
	})
	event.Subscribe(bus, func(ev event.PositionSaved) {
		log.Debug("position saved",
			zap.String("char_id", ev.CharID),
			zap.Float64("x", ev.X),
			zap.Float64("y", ev.Y),
		)
	})

	srv := server.New(cfg.Network, deps, log)

	ln, err := net.Listen("tcp", cfg.Server.BindAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.BindAddress, err)
	}
	log.Info("listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	stopBus := make(chan struct{})
	go func() {
		tick := time.NewTicker(busInterval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				bus.SwapBuffers()
				bus.DispatchAll()
			case <-stopBus:
				bus.SwapBuffers()
				bus.DispatchAll()
				return
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
	close(stopBus)
	saver.Close()
	log.Info("stopped")
	return nil
}
