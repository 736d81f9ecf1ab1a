// Package config enables config file parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/verilayer/verilayer/log"
)

// Config contains the CLI configuration.
type Config struct {
	Protocol     *ProtocolConfig     `koanf:"protocol"`
	Storage      *StorageConfig      `koanf:"storage"`
	Events       *EventsConfig       `koanf:"events"`
	Verification *VerificationConfig `koanf:"verification"`
	Server       *ServerConfig       `koanf:"server"`
	Log          *LogConfig          `koanf:"log"`
	Metrics      *MetricsConfig      `koanf:"metrics"`
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	if cfg.Protocol != nil {
		if err := cfg.Protocol.Validate(); err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
	}
	if cfg.Storage != nil {
		if err := cfg.Storage.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	if cfg.Events != nil {
		if err := cfg.Events.Validate(); err != nil {
			return fmt.Errorf("events: %w", err)
		}
	}
	if cfg.Verification != nil {
		if err := cfg.Verification.Validate(); err != nil {
			return fmt.Errorf("verification: %w", err)
		}
	}
	if cfg.Server != nil {
		if err := cfg.Server.Validate(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	if cfg.Log != nil {
		if err := cfg.Log.Validate(); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	if cfg.Metrics != nil {
		if err := cfg.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

// DefaultGraceBlocks is the number of blocks after a verdict during which
// only the task owner may finalize a disputed task.
const DefaultGraceBlocks = 10

// ProtocolConfig holds the parameters of the incentive protocol.
type ProtocolConfig struct {
	// GraceBlocks is how long after the dispute deadline anyone, not only
	// the owner, may finalize a task with a verdict.
	GraceBlocks uint64 `koanf:"grace_blocks"`

	// Custody is the substrate account that holds escrowed value.
	Custody string `koanf:"custody"`
}

// Validate validates the protocol configuration.
func (cfg *ProtocolConfig) Validate() error {
	if cfg.Custody != "" && !ethCommon.IsHexAddress(cfg.Custody) {
		return fmt.Errorf("malformed custody address '%s'", cfg.Custody)
	}
	return nil
}

// CustodyAddress returns the configured custody address, or the zero
// address if none was configured.
func (cfg *ProtocolConfig) CustodyAddress() ethCommon.Address {
	if cfg == nil || cfg.Custody == "" {
		return ethCommon.Address{}
	}
	return ethCommon.HexToAddress(cfg.Custody)
}

// Grace returns the configured grace period, falling back to DefaultGraceBlocks.
func (cfg *ProtocolConfig) Grace() uint64 {
	if cfg == nil || cfg.GraceBlocks == 0 {
		return DefaultGraceBlocks
	}
	return cfg.GraceBlocks
}

// StorageBackend is a storage backend.
type StorageBackend uint

const (
	// BackendPogreb is the pogreb on-disk storage backend.
	BackendPogreb StorageBackend = iota
	// BackendInMemory is the in-memory storage backend.
	BackendInMemory
)

// String returns the string representation of a StorageBackend.
func (sb *StorageBackend) String() string {
	switch *sb {
	case BackendPogreb:
		return "pogreb"
	case BackendInMemory:
		return "inmemory"
	default:
		panic("config: unsupported storage backend")
	}
}

// Set sets the StorageBackend to the value specified by the provided string.
func (sb *StorageBackend) Set(s string) error {
	switch strings.ToLower(s) {
	case "pogreb":
		*sb = BackendPogreb
	case "inmemory":
		*sb = BackendInMemory
	default:
		return fmt.Errorf("config: invalid storage backend: '%s'", s)
	}

	return nil
}

// Type returns the list of supported StorageBackends.
func (sb *StorageBackend) Type() string {
	return "[pogreb,inmemory]"
}

// StorageConfig contains the configuration of the durable task and account state.
type StorageConfig struct {
	// Backend is the storage backend to select.
	Backend string `koanf:"backend"`

	// Path is the directory holding the pogreb database.
	Path string `koanf:"path"`
}

// Validate validates the storage configuration.
func (cfg *StorageConfig) Validate() error {
	var sb StorageBackend
	if err := sb.Set(cfg.Backend); err != nil {
		return err
	}
	if sb == BackendPogreb && cfg.Path == "" {
		return fmt.Errorf("pogreb backend requires a path")
	}
	return nil
}

// EventsBackend is an event log backend.
type EventsBackend uint

const (
	// EventsMemory keeps the event log in memory only.
	EventsMemory EventsBackend = iota
	// EventsPostgres additionally persists events into PostgreSQL.
	EventsPostgres
)

// String returns the string representation of an EventsBackend.
func (eb *EventsBackend) String() string {
	switch *eb {
	case EventsMemory:
		return "memory"
	case EventsPostgres:
		return "postgres"
	default:
		panic("config: unsupported events backend")
	}
}

// Set sets the EventsBackend to the value specified by the provided string.
func (eb *EventsBackend) Set(s string) error {
	switch strings.ToLower(s) {
	case "memory":
		*eb = EventsMemory
	case "postgres":
		*eb = EventsPostgres
	default:
		return fmt.Errorf("config: invalid events backend: '%s'", s)
	}

	return nil
}

// Type returns the list of supported EventsBackends.
func (eb *EventsBackend) Type() string {
	return "[memory,postgres]"
}

// EventsConfig contains the event log configuration.
type EventsConfig struct {
	// Backend is the event log backend to select.
	Backend string `koanf:"backend"`

	// Endpoint is the PostgreSQL connection string for the event sink.
	Endpoint string `koanf:"endpoint"`

	// Migrations is the directory containing schema migrations.
	Migrations string `koanf:"migrations"`

	// BatchSize is how many events are handed to a sink at once.
	BatchSize int `koanf:"batch_size"`

	// Retain is how many of the newest events stay in memory once the
	// postgres sink has stored them. 0 keeps every event in memory.
	Retain int `koanf:"retain"`

	// If true, we'll first delete all tables in the DB.
	WipeStorage bool `koanf:"DANGER__WIPE_STORAGE_ON_STARTUP"`
}

// Validate validates the events configuration.
func (cfg *EventsConfig) Validate() error {
	var eb EventsBackend
	if err := eb.Set(cfg.Backend); err != nil {
		return err
	}
	if eb == EventsPostgres {
		if cfg.Endpoint == "" {
			return fmt.Errorf("malformed events endpoint '%s'", cfg.Endpoint)
		}
		if cfg.Migrations == "" {
			return fmt.Errorf("invalid path to migrations '%s'", cfg.Migrations)
		}
	}
	if cfg.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative")
	}
	if cfg.Retain < 0 {
		return fmt.Errorf("retain must not be negative")
	}
	return nil
}

// VerificationBackend selects how verification games are played.
type VerificationBackend uint

const (
	// VerificationStatic always returns the configured verdict.
	VerificationStatic VerificationBackend = iota
	// VerificationHTTP asks an external adjudicator service.
	VerificationHTTP
)

// String returns the string representation of a VerificationBackend.
func (vb *VerificationBackend) String() string {
	switch *vb {
	case VerificationStatic:
		return "static"
	case VerificationHTTP:
		return "http"
	default:
		panic("config: unsupported verification backend")
	}
}

// Set sets the VerificationBackend to the value specified by the provided string.
func (vb *VerificationBackend) Set(s string) error {
	switch strings.ToLower(s) {
	case "static":
		*vb = VerificationStatic
	case "http":
		*vb = VerificationHTTP
	default:
		return fmt.Errorf("config: invalid verification backend: '%s'", s)
	}

	return nil
}

// Type returns the list of supported VerificationBackends.
func (vb *VerificationBackend) Type() string {
	return "[static,http]"
}

// VerificationConfig configures the verification game collaborator.
type VerificationConfig struct {
	Backend string `koanf:"backend"`

	// Endpoint is the URL of the adjudicator service (http backend only).
	Endpoint string `koanf:"endpoint"`

	// Timeout bounds a single adjudication request.
	Timeout time.Duration `koanf:"timeout"`

	// Verdict is the outcome reported by the static backend:
	// "solver_correct" or "solver_incorrect".
	Verdict string `koanf:"verdict"`
}

// Validate validates the verification configuration.
func (cfg *VerificationConfig) Validate() error {
	var vb VerificationBackend
	if err := vb.Set(cfg.Backend); err != nil {
		return err
	}
	switch vb {
	case VerificationHTTP:
		if cfg.Endpoint == "" {
			return fmt.Errorf("malformed verification endpoint '%s'", cfg.Endpoint)
		}
	case VerificationStatic:
		if cfg.Verdict != "solver_correct" && cfg.Verdict != "solver_incorrect" {
			return fmt.Errorf("invalid static verdict '%s'", cfg.Verdict)
		}
	}
	return nil
}

// ServerConfig contains the API server configuration.
type ServerConfig struct {
	// Endpoint is the service endpoint from which to serve the API.
	Endpoint string `koanf:"endpoint"`

	// DevEndpoints enables the /dev routes that fund wallets and mine blocks
	// on the in-memory substrate. Never enable on a shared deployment.
	DevEndpoints bool `koanf:"dev_endpoints"`

	// BlockInterval, if non-zero, mines a block on the in-memory substrate
	// at this interval. Otherwise blocks only advance through /dev/advance.
	BlockInterval time.Duration `koanf:"block_interval"`
}

// Validate validates the server configuration.
func (cfg *ServerConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("malformed server endpoint '%s'", cfg.Endpoint)
	}
	if cfg.BlockInterval < 0 {
		return fmt.Errorf("block_interval must not be negative")
	}
	return nil
}

// LogConfig contains the logging configuration.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	File   string `koanf:"file"`
}

// Validate validates the logging configuration.
func (cfg *LogConfig) Validate() error {
	var format log.Format
	if err := format.Set(cfg.Format); err != nil {
		return err
	}
	var level log.Level
	return level.Set(cfg.Level)
}

// MetricsConfig contains the metrics configuration.
type MetricsConfig struct {
	PullEndpoint string `koanf:"pull_endpoint"`

	// PprofEndpoint, if set, serves the Go profiler on a separate listener.
	PprofEndpoint string `koanf:"pprof_endpoint"`
}

// Validate validates the metrics configuration.
func (cfg *MetricsConfig) Validate() error {
	if cfg.PullEndpoint == "" {
		return fmt.Errorf("malformed Prometheus pull endpoint '%s'", cfg.PullEndpoint)
	}
	return nil
}

// InitConfig initializes configuration from file.
func InitConfig(f string) (*Config, error) {
	return initConfig(file.Provider(f))
}

func initConfig(p koanf.Provider) (*Config, error) {
	var config Config
	k := koanf.New(".")

	// Load configuration from the yaml config.
	if err := k.Load(p, yaml.Parser()); err != nil {
		return nil, err
	}

	// Load environment variables and merge into the loaded config.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		// `__` is used as a hierarchy delimiter.
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Unmarshal into config.
	if err := k.Unmarshal("", &config); err != nil {
		return nil, err
	}

	// Validate config.
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
