// Package config assembles the values orchestrator.Init and
// hierarchy.Init need from either a caller building them via functional
// options in Go, or a TOML runtime configuration file loaded with
// FromTOML, per SPEC_FULL.md §10's ambient configuration surface.
//
// Grounded on eventloop/options.go's Option func(*config) shape: a
// private options struct and exported With* constructors, adapted here
// from one loop's options to the runtime's pool/lane/worker/backend
// sizing. New applies the options over a zero-valued struct; there is no
// separate step that fills in defaults.
package config

import (
	"github.com/BurntSushi/toml"

	"github.com/coriolis-labs/corerun/memory/hierarchy"
	"github.com/coriolis-labs/corerun/orchestrator"
	"github.com/coriolis-labs/corerun/rterr"
)

// Backend configures the shared-memory region a Config's Allocator is
// built over.
type Backend struct {
	// ID names the backend for lookup/destroy (spec.md §4.1).
	ID uint64 `toml:"id"`
	// SizeBytes is the backend's total data-region size.
	SizeBytes uint64 `toml:"size_bytes"`
	// Path is a filesystem path for a cross-process posix mmap backend.
	// Empty selects an in-process backend.MallocBackend instead, for
	// single-process deployments and tests.
	Path string `toml:"path"`
}

// Hierarchy configures the three-tier allocator built over a Backend.
type Hierarchy struct {
	// Flat selects hierarchy.KindFlat (global-pool-only) instead of the
	// default hierarchy.KindScalable.
	Flat bool `toml:"flat"`
	// ThreadUnitBytes and ProcessUnitBytes override
	// hierarchy.DefaultThreadUnit/DefaultProcessUnit; zero keeps the
	// default.
	ThreadUnitBytes  uint64 `toml:"thread_unit_bytes"`
	ProcessUnitBytes uint64 `toml:"process_unit_bytes"`
}

// Runtime configures the worker fleet an orchestrator.Init call builds.
type Runtime struct {
	NumWorkers      int   `toml:"num_workers"`
	Lanes           int   `toml:"lanes"`
	StacksPerWorker int   `toml:"stacks_per_worker"`
	Priorities      int   `toml:"priorities"`
	RingCapacity    uint64 `toml:"ring_capacity"`
	DepCapacity     int   `toml:"dep_capacity"`
	AdminLanes      []int `toml:"admin_lanes"`
}

// Config is the fully assembled runtime configuration: enough to build a
// backend, an allocator over it, and the orchestrator that runs the
// worker fleet against them. Every field has a usable zero value except
// Runtime.NumWorkers/Lanes/StacksPerWorker, which orchestrator.Init
// itself rejects at zero.
type Config struct {
	Backend   Backend   `toml:"backend"`
	Hierarchy Hierarchy `toml:"hierarchy"`
	Runtime   Runtime   `toml:"runtime"`
}

// Option mutates a Config being assembled by New, mirroring
// worker.Option and orchestrator.Option's plain closure shape.
type Option func(*Config)

// WithBackend sets the backend a Config's allocator is built over.
func WithBackend(b Backend) Option {
	return func(c *Config) { c.Backend = b }
}

// WithHierarchy sets the allocator tiering configuration.
func WithHierarchy(h Hierarchy) Option {
	return func(c *Config) { c.Hierarchy = h }
}

// WithNumWorkers sets the worker fleet size.
func WithNumWorkers(n int) Option {
	return func(c *Config) { c.Runtime.NumWorkers = n }
}

// WithLanes sets the queue's lane count.
func WithLanes(n int) Option {
	return func(c *Config) { c.Runtime.Lanes = n }
}

// WithStacksPerWorker sets each worker's fiber pool size.
func WithStacksPerWorker(n int) Option {
	return func(c *Config) { c.Runtime.StacksPerWorker = n }
}

// WithPriorities sets the queue's priority-level count.
func WithPriorities(n int) Option {
	return func(c *Config) { c.Runtime.Priorities = n }
}

// WithRingCapacity sets each priority ring's capacity.
func WithRingCapacity(n uint64) Option {
	return func(c *Config) { c.Runtime.RingCapacity = n }
}

// WithDepCapacity sets each task's dependency-set capacity.
func WithDepCapacity(n int) Option {
	return func(c *Config) { c.Runtime.DepCapacity = n }
}

// WithAdminLanes sets the lanes stop_runtime drains before setting every
// worker's stop flag.
func WithAdminLanes(lanes ...int) Option {
	return func(c *Config) { c.Runtime.AdminLanes = lanes }
}

// New builds a Config from options, applied in order over the zero
// value.
func New(opts ...Option) *Config {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromTOML loads a Config from a TOML file at path, per SPEC_FULL.md
// §10's "pools, lane counts, worker counts, backend sizes in a runtime
// configuration file" requirement.
func FromTOML(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, rterr.WrapFatal("config.FromTOML", err)
	}
	return &c, nil
}

// HierarchyParams translates the Hierarchy section into
// hierarchy.Params.
func (c *Config) HierarchyParams() hierarchy.Params {
	return hierarchy.Params{
		ThreadUnit:  c.Hierarchy.ThreadUnitBytes,
		ProcessUnit: c.Hierarchy.ProcessUnitBytes,
	}
}

// HierarchyKind reports the hierarchy.Kind the Hierarchy section
// selects.
func (c *Config) HierarchyKind() hierarchy.Kind {
	if c.Hierarchy.Flat {
		return hierarchy.KindFlat
	}
	return hierarchy.KindScalable
}

// OrchestratorOptions builds the orchestrator.Option slice this Config's
// Runtime section implies, for a caller assembling its own
// orchestrator.Init call, e.g.:
//
//	orch, err := orchestrator.Init(cfg.Runtime.NumWorkers, cfg.Runtime.Lanes,
//	    cfg.Runtime.StacksPerWorker, cfg.OrchestratorOptions()...)
func (c *Config) OrchestratorOptions() []orchestrator.Option {
	var opts []orchestrator.Option
	if c.Runtime.Priorities > 0 {
		opts = append(opts, orchestrator.WithPriorities(c.Runtime.Priorities))
	}
	if c.Runtime.RingCapacity > 0 {
		opts = append(opts, orchestrator.WithRingCapacity(c.Runtime.RingCapacity))
	}
	if c.Runtime.DepCapacity > 0 {
		opts = append(opts, orchestrator.WithDepCapacity(c.Runtime.DepCapacity))
	}
	if len(c.Runtime.AdminLanes) > 0 {
		opts = append(opts, orchestrator.WithAdminLanes(c.Runtime.AdminLanes...))
	}
	return opts
}
