// Package common implements common verilayer command options.
package common

import (
	"fmt"
	"io"
	stdLog "log"
	"os"

	"github.com/akrylysov/pogreb"
	coreLogging "github.com/oasisprotocol/oasis-core/go/common/logging"

	"github.com/verilayer/verilayer/config"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/metrics"
	"github.com/verilayer/verilayer/storage/kvstore"
	"github.com/verilayer/verilayer/verification"
)

var rootLogger = log.NewDefaultLogger("verilayer")

// Init initializes the common environment.
func Init(cfg *config.Config) error {
	var w io.Writer = os.Stdout
	format := log.FmtJSON
	level := log.LevelDebug
	coreFormat := coreLogging.FmtJSON   // For oasis-core.
	coreLevel := coreLogging.LevelDebug // For oasis-core.

	// Initialize verilayer logging.
	if cfg.Log != nil {
		var err error
		if w, err = getLoggingStream(cfg.Log); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		if err := format.Set(cfg.Log.Format); err != nil {
			return err
		}
		if err := level.Set(cfg.Log.Level); err != nil {
			return err
		}
	}
	logger, err := log.NewLogger("verilayer", w, format, level)
	if err != nil {
		return err
	}
	rootLogger = logger

	// Initialize oasis-core logging. Quantity and cbor helpers log through it.
	if err := coreLogging.Initialize(w, coreFormat, coreLevel, nil); err != nil {
		logger.Error("failed to initialize oasis-core logging", "err", err)
		return err
	}

	// Initialize pogreb logging.
	pogrebLogger := RootLogger().WithModule("pogreb").WithCallerUnwind(7)
	pogreb.SetLogger(stdLog.New(log.WriterIntoLogger(*pogrebLogger), "", 0))

	if cfg.Metrics != nil && cfg.Metrics.PprofEndpoint != "" {
		startPprof(cfg.Metrics.PprofEndpoint)
	}
	return nil
}

// RootLogger returns the logger defined by logging flags.
func RootLogger() *log.Logger {
	return rootLogger
}

func getLoggingStream(cfg *config.LogConfig) (io.Writer, error) {
	if cfg == nil || cfg.File == "" {
		return os.Stdout, nil
	}
	w, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NewStore opens the task and account store.
func NewStore(cfg *config.StorageConfig, logger *log.Logger) (kvstore.KVStore, error) {
	if cfg == nil {
		return kvstore.NewMemoryKVStore(), nil
	}
	var backend config.StorageBackend
	if err := backend.Set(cfg.Backend); err != nil {
		return nil, err
	}

	switch backend {
	case config.BackendPogreb:
		m := metrics.NewDefaultStorageMetrics("kvstore")
		return kvstore.OpenKVStore(logger.WithModule("kvstore"), cfg.Path, &m)
	case config.BackendInMemory:
		return kvstore.NewMemoryKVStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %v", backend.String())
	}
}

// NewGame creates the verification game collaborator.
func NewGame(cfg *config.VerificationConfig, logger *log.Logger) (verification.Game, error) {
	if cfg == nil {
		return nil, fmt.Errorf("verification config not provided")
	}
	var backend config.VerificationBackend
	if err := backend.Set(cfg.Backend); err != nil {
		return nil, err
	}

	switch backend {
	case config.VerificationStatic:
		verdict, err := verification.ParseVerdict(cfg.Verdict)
		if err != nil {
			return nil, err
		}
		return verification.Static(verdict), nil
	case config.VerificationHTTP:
		return verification.NewHTTPGame(cfg.Endpoint, cfg.Timeout, logger), nil
	default:
		return nil, fmt.Errorf("unsupported verification backend: %v", backend.String())
	}
}
