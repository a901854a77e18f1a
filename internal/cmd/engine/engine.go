// Package engine parses engine command flags and assembles the card economy
// runtime.
package engine

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/louisbranch/arcana.cards/internal/catalog"
	"github.com/louisbranch/arcana.cards/internal/draw"
	"github.com/louisbranch/arcana.cards/internal/hand"
	"github.com/louisbranch/arcana.cards/internal/kv"
	"github.com/louisbranch/arcana.cards/internal/kv/bboltkv"
	"github.com/louisbranch/arcana.cards/internal/milestone"
	"github.com/louisbranch/arcana.cards/internal/notify"
	entrypoint "github.com/louisbranch/arcana.cards/internal/platform/cmd"
	"github.com/louisbranch/arcana.cards/internal/ratelimit"
	"github.com/louisbranch/arcana.cards/internal/telemetry"
	"github.com/louisbranch/arcana.cards/internal/trade"
	historysqlite "github.com/louisbranch/arcana.cards/internal/trade/history/sqlite"
)

// Config holds engine command configuration.
type Config struct {
	DataDir         string        `env:"ARCANA_CARDS_DATA_DIR" envDefault:"data"`
	DrawCooldown    time.Duration `env:"ARCANA_CARDS_DRAW_COOLDOWN" envDefault:"1h"`
	DrawProbability float64       `env:"ARCANA_CARDS_DRAW_PROBABILITY" envDefault:"0.25"`
	TradeTTL        time.Duration `env:"ARCANA_CARDS_TRADE_TTL" envDefault:"10m"`
	BaseCapacity    int           `env:"ARCANA_CARDS_BASE_CAPACITY" envDefault:"5"`
	AnnounceUser    string        `env:"ARCANA_CARDS_ANNOUNCE_CHANNEL"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the bbolt and sqlite data files")
	fs.DurationVar(&cfg.DrawCooldown, "draw-cooldown", cfg.DrawCooldown, "Cooldown between draws per user")
	fs.Float64Var(&cfg.DrawProbability, "draw-probability", cfg.DrawProbability, "Chance a non-first draw succeeds, in [0, 1]")
	fs.DurationVar(&cfg.TradeTTL, "trade-ttl", cfg.TradeTTL, "How long a trade offer stays open")
	fs.IntVar(&cfg.BaseCapacity, "base-capacity", cfg.BaseCapacity, "Hand capacity before any milestone raises it")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// App is the assembled engine: the surfaces the messaging layer calls into.
type App struct {
	Deck   *catalog.Catalog
	KV     *kv.Store
	Hands  *hand.Registry
	Draws  *draw.Engine
	Trades *trade.Negotiator

	backend *bboltkv.Store
	history *historysqlite.Store
}

// defaultMilestones announces population thresholds shortly after they are
// crossed and grows everyone's hand capacity alongside.
func defaultMilestones(notifier notify.Notifier, announceUser string) ([]milestone.Milestone, []milestone.CapacityStep) {
	announce := func(text string) func(context.Context) {
		return func(ctx context.Context) {
			if announceUser == "" {
				log.Printf("milestone: %s", text)
				return
			}
			if err := notifier.Notify(ctx, announceUser, text); err != nil {
				log.Printf("milestone announce: %v", err)
			}
		}
	}
	milestones := []milestone.Milestone{
		{Threshold: 10, Flag: "population_10", Delay: time.Minute, Action: announce("ten hands have been dealt")},
		{Threshold: 50, Flag: "population_50", Delay: time.Minute, Action: announce("fifty hands have been dealt")},
		{Threshold: 100, Flag: "population_100", Delay: time.Minute, Action: announce("one hundred hands have been dealt")},
	}
	steps := []milestone.CapacityStep{
		{Threshold: 50, Capacity: 6},
		{Threshold: 100, Capacity: 7},
	}
	return milestones, steps
}

// NewApp opens the data stores and wires every component. Callers own Close.
func NewApp(cfg Config, notifier notify.Notifier) (*App, error) {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	backend, err := bboltkv.Open(filepath.Join(cfg.DataDir, "engine.db"))
	if err != nil {
		return nil, fmt.Errorf("open kv backend: %w", err)
	}
	historyStore, err := historysqlite.Open(filepath.Join(cfg.DataDir, "history.db"))
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("open history store: %w", err)
	}

	store := kv.NewStore(backend)
	emitter := telemetry.NewEmitter(historyStore)
	hands := hand.NewRegistry(store)
	limiter := ratelimit.NewLimiter(store, cfg.DrawCooldown)
	milestones, steps := defaultMilestones(notifier, cfg.AnnounceUser)
	tracker := milestone.NewTracker(store, milestone.TimerScheduler{}, milestones, steps, cfg.BaseCapacity)

	deck := catalog.DefaultDeck()
	draws := draw.NewEngine(deck, hands, limiter, tracker, emitter, draw.Config{
		SuccessProbability: cfg.DrawProbability,
	})
	trades := trade.NewNegotiator(hands, historyStore, notifier, emitter, nil, cfg.TradeTTL)

	return &App{
		Deck:    deck,
		KV:      store,
		Hands:   hands,
		Draws:   draws,
		Trades:  trades,
		backend: backend,
		history: historyStore,
	}, nil
}

// Close flushes pending persistence work and releases the data stores.
func (a *App) Close() error {
	a.KV.Flush()
	var firstErr error
	if err := a.backend.Close(); err != nil {
		firstErr = fmt.Errorf("close kv backend: %w", err)
	}
	if err := a.history.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close history store: %w", err)
	}
	return firstErr
}

// Run assembles the engine and keeps it alive until ctx is canceled. The
// messaging layer attaches through App in-process.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(ctx context.Context) error {
		app, err := NewApp(cfg, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				log.Printf("engine shutdown: %v", err)
			}
		}()
		log.Printf("engine ready: %d cards, cooldown %s", app.Deck.Len(), cfg.DrawCooldown)
		<-ctx.Done()
		return nil
	})
}
