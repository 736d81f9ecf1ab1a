// Package serve implements the serve sub-command.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/verilayer/verilayer/api"
	v1 "github.com/verilayer/verilayer/api/v1"
	"github.com/verilayer/verilayer/cmd/common"
	sharedCommon "github.com/verilayer/verilayer/common"
	"github.com/verilayer/verilayer/config"
	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/incentive"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/metrics"
	"github.com/verilayer/verilayer/storage/kvstore"
	"github.com/verilayer/verilayer/storage/postgres"
	"github.com/verilayer/verilayer/substrate/memchain"
)

const (
	moduleName = "serve"

	// How long startup may spend wiping and migrating the event database.
	migrateTimeout = 5 * time.Minute
)

var (
	// Path to the configuration file.
	configFile string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the incentive layer API",
		Run:   runServer,
	}
)

func runServer(cmd *cobra.Command, args []string) {
	// Initialize config.
	cfg, err := config.InitConfig(configFile)
	if err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}

	// Initialize common environment.
	if err = common.Init(cfg); err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}
	logger := common.RootLogger()

	if cfg.Server == nil {
		logger.Error("server config not provided")
		os.Exit(1)
	}

	service, err := Init(cfg)
	if err != nil {
		os.Exit(1)
	}
	defer service.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := service.Run(ctx); err != nil {
		logger.Error("service stopped", "err", err)
		service.Shutdown()
		os.Exit(1)
	}
}

// Init initializes the serve service.
func Init(cfg *config.Config) (*Service, error) {
	logger := common.RootLogger()

	service, err := NewService(cfg)
	if err != nil {
		logger.Error("service failed to start",
			"error", err,
		)
		return nil, err
	}
	return service, nil
}

// Service runs the incentive layer: the HTTP API, the event dispatcher, and
// optionally the metrics endpoint and a block ticker for the in-memory substrate.
type Service struct {
	endpoint      string
	blockInterval time.Duration

	api        *api.IncentiveAPI
	chain      *memchain.Chain
	dispatcher *events.Dispatcher
	store      kvstore.KVStore
	eventDB    *postgres.Client // nil unless events are persisted
	metrics    *metrics.PullService

	logger *log.Logger
}

// NewService creates a new serve service.
func NewService(cfg *config.Config) (*Service, error) {
	logger := common.RootLogger().WithModule(moduleName)

	store, err := common.NewStore(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	game, err := common.NewGame(cfg.Verification, logger)
	if err != nil {
		sharedCommon.CloseOrLog(store, logger)
		return nil, fmt.Errorf("creating verification game: %w", err)
	}

	memLog := events.NewMemoryLog()
	var (
		sinks     []events.Sink
		archive   events.Archive
		batchSize int
		retain    int
		eventDB   *postgres.Client
	)
	if cfg.Events != nil {
		batchSize = cfg.Events.BatchSize
		eventDB, err = newEventDB(cfg.Events, logger)
		if err != nil {
			sharedCommon.CloseOrLog(store, logger)
			return nil, err
		}
		if eventDB != nil {
			sink := postgres.NewEventSink(eventDB)
			sinks = append(sinks, sink)
			// Only a readable sink lets the log drop history.
			archive, retain = sink, cfg.Events.Retain
		}
	}
	dispatcher := events.NewDispatcher(memLog, sinks, batchSize, retain, logger)

	chain, err := memchain.Open(store, logger)
	if err != nil {
		sharedCommon.CloseOrLog(store, logger)
		return nil, fmt.Errorf("opening substrate: %w", err)
	}
	layer := incentive.NewLayer(store, chain, game, dispatcher, incentive.OptionsFromConfig(cfg.Protocol), logger)

	var dev v1.DevChain
	if cfg.Server.DevEndpoints {
		logger.Warn("dev endpoints enabled; anyone can mint value and mine blocks")
		dev = chain
	}

	var pull *metrics.PullService
	if cfg.Metrics != nil {
		if pull, err = metrics.NewPullService(cfg.Metrics.PullEndpoint, logger); err != nil {
			sharedCommon.CloseOrLog(store, logger)
			return nil, err
		}
	}

	return &Service{
		endpoint:      cfg.Server.Endpoint,
		blockInterval: cfg.Server.BlockInterval,
		api:           api.NewIncentiveAPI(layer, events.NewReader(memLog, archive), dev, logger),
		chain:         chain,
		dispatcher:    dispatcher,
		store:         store,
		eventDB:       eventDB,
		metrics:       pull,
		logger:        logger,
	}, nil
}

// newEventDB connects to and migrates the event database, or returns nil if
// events are kept in memory only.
func newEventDB(cfg *config.EventsConfig, logger *log.Logger) (*postgres.Client, error) {
	var backend config.EventsBackend
	if err := backend.Set(cfg.Backend); err != nil {
		return nil, err
	}
	if backend != config.EventsPostgres {
		return nil, nil
	}

	client, err := postgres.NewClient(cfg.Endpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to event database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	if cfg.WipeStorage {
		logger.Warn("wiping event database", "endpoint", cfg.Endpoint)
		if err := client.Wipe(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("wiping event database: %w", err)
		}
	}
	if err := postgres.Migrate(cfg.Migrations, cfg.Endpoint, logger); err != nil {
		client.Close()
		return nil, fmt.Errorf("migrating event database: %w", err)
	}
	lastSeq, err := postgres.NewEventSink(client).LastSeq(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("reading event database: %w", err)
	}
	logger.Info("event database ready", "last_seq", lastSeq)
	return client, nil
}

// Run runs all parts of the service until ctx is canceled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting incentive layer", "endpoint", s.endpoint)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sharedCommon.RunServer(ctx, s.api.Server(s.endpoint), s.logger)
	})
	g.Go(func() error {
		return s.dispatcher.Run(ctx)
	})
	if s.metrics != nil {
		g.Go(func() error {
			return s.metrics.Run(ctx)
		})
	}
	if s.blockInterval > 0 {
		g.Go(func() error {
			s.mineBlocks(ctx)
			return nil
		})
	}
	return g.Wait()
}

// mineBlocks advances the in-memory substrate by one block per interval.
func (s *Service) mineBlocks(ctx context.Context) {
	ticker := time.NewTicker(s.blockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			height, err := s.chain.Advance(1)
			if err != nil {
				s.logger.Error("failed to mine block", "err", err)
				continue
			}
			s.logger.Debug("mined block", "height", height)
		}
	}
}

// Shutdown releases the store and the event database. It is safe to call
// more than once.
func (s *Service) Shutdown() {
	if s.store != nil {
		sharedCommon.CloseOrLog(s.store, s.logger)
		s.store = nil
	}
	if s.eventDB != nil {
		s.eventDB.Close()
		s.eventDB = nil
	}
}

// Register registers the serve sub-command.
func Register(parentCmd *cobra.Command) {
	serveCmd.Flags().StringVar(&configFile, "config", "./conf/server.yml", "path to the config.yml file")
	parentCmd.AddCommand(serveCmd)
}
