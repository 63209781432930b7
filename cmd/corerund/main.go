// Command corerund is the reference "surrounding executable" spec.md §6
// describes as talking to the core over start_runtime, stop_runtime and
// compose: it builds a backend, an allocator over it, and an
// orchestrator-managed worker fleet from a config.Config, then exposes
// that lifecycle as three subcommands.
//
// Grounded on sublrun's flag-based single-binary CLI shape
// (cmd/sublrun/main.go: flag.Int/flag.Bool for engine options, log.Fatalf
// on setup errors), adapted from one subcommand to three since corerund's
// CLI surface is explicitly the three-verb contract of spec.md §6.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/coriolis-labs/corerun/config"
	"github.com/coriolis-labs/corerun/memory/backend"
	"github.com/coriolis-labs/corerun/memory/hierarchy"
	"github.com/coriolis-labs/corerun/orchestrator"
	"github.com/coriolis-labs/corerun/rtlog"
)

func main() {
	if err := rtlog.ConfigureFromEnv(); err != nil {
		log.Fatalf("corerund: configuring logging: %v", err)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start_runtime", "start":
		err = cmdStart(os.Args[2:])
	case "stop_runtime", "stop":
		err = cmdStop(os.Args[2:])
	case "compose":
		err = cmdCompose(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("corerund: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <start_runtime|stop_runtime|compose> [options]\n", os.Args[0])
}

func defaultPidfile() string {
	if p := os.Getenv("CORERUN_PIDFILE"); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), "corerund.pid")
}

// cmdStart implements start_runtime: builds the backend, allocator and
// orchestrator from -config (or flag defaults), starts the worker fleet,
// records a pidfile, and blocks until interrupted or told to stop, at
// which point it drains per stop_runtime's grace period.
//
// start_runtime is idempotent under a one-shot guard at the
// orchestrator level (orchestrator.Start's atomic CAS): a second Start
// call against the same *orchestrator.Orchestrator is always a no-op,
// per spec.md §6.
func cmdStart(args []string) error {
	fs := flag.NewFlagSet("start_runtime", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a TOML runtime configuration file (see compose)")
	numWorkers := fs.Int("workers", 4, "worker fleet size (ignored when -config is given)")
	lanes := fs.Int("lanes", 8, "queue lane count (ignored when -config is given)")
	stacks := fs.Int("stacks", 16, "fiber pool size per worker (ignored when -config is given)")
	grace := fs.Duration("grace", 5*time.Second, "default grace period for stop_runtime on SIGINT/SIGTERM")
	pidfile := fs.String("pidfile", defaultPidfile(), "pidfile path stop_runtime signals against")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadOrDefaultConfig(*configPath, *numWorkers, *lanes, *stacks)
	if err != nil {
		return err
	}

	be, alloc, err := buildBackendAndAllocator(cfg)
	if err != nil {
		return err
	}

	orch, err := orchestrator.Init(cfg.Runtime.NumWorkers, cfg.Runtime.Lanes, cfg.Runtime.StacksPerWorker,
		append(cfg.OrchestratorOptions(), orchestrator.WithAllocator(alloc))...)
	if err != nil {
		return fmt.Errorf("orchestrator.Init: %w", err)
	}

	ctx := context.Background()
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator.Start: %w", err)
	}
	// A second call is always a documented no-op, demonstrating
	// start_runtime's one-shot guard rather than starting a second fleet.
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator.Start (idempotency check): %w", err)
	}

	if err := os.WriteFile(*pidfile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing pidfile: %w", err)
	}
	defer os.Remove(*pidfile)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	rtlog.Default().Log(rtlog.LogEntry{
		Level:    rtlog.LevelInfo,
		Category: "orchestrator",
		Message:  "runtime started",
		Context: map[string]any{
			"workers": cfg.Runtime.NumWorkers,
			"lanes":   cfg.Runtime.Lanes,
			"pid":     os.Getpid(),
		},
	})

	<-sig

	stopGrace := *grace
	if g, ok := readGraceOverride(*pidfile); ok {
		stopGrace = g
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace+time.Second)
	defer cancel()
	if err := orch.Stop(stopCtx, stopGrace); err != nil {
		if be != nil {
			_ = be.Detach()
		}
		return fmt.Errorf("orchestrator.Stop: %w", err)
	}
	if be != nil {
		_ = be.Detach()
	}
	return nil
}

// cmdStop implements stop_runtime(grace_ms) against an already-running
// start_runtime process: it writes the requested grace period next to
// the pidfile and signals the process, which reads it back on receipt of
// SIGTERM before calling orchestrator.Stop.
func cmdStop(args []string) error {
	fs := flag.NewFlagSet("stop_runtime", flag.ExitOnError)
	graceMS := fs.Int("grace-ms", 5000, "grace period in milliseconds before a forced stop")
	pidfile := fs.String("pidfile", defaultPidfile(), "pidfile written by start_runtime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	raw, err := os.ReadFile(*pidfile)
	if err != nil {
		return fmt.Errorf("reading pidfile %s: %w", *pidfile, err)
	}
	pid, err := strconv.Atoi(string(raw))
	if err != nil {
		return fmt.Errorf("parsing pidfile %s: %w", *pidfile, err)
	}

	graceFile := *pidfile + ".grace"
	if err := os.WriteFile(graceFile, []byte(strconv.Itoa(*graceMS)), 0o644); err != nil {
		return fmt.Errorf("writing grace override: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signalling process %d: %w", pid, err)
	}
	return nil
}

// readGraceOverride reads a grace period previously written by cmdStop
// next to pidfile, cleaning it up once consumed.
func readGraceOverride(pidfile string) (time.Duration, bool) {
	graceFile := pidfile + ".grace"
	raw, err := os.ReadFile(graceFile)
	if err != nil {
		return 0, false
	}
	defer os.Remove(graceFile)
	ms, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// cmdCompose implements compose(path): loads and validates a TOML
// runtime configuration file, printing the resolved values a
// start_runtime call against it would use, without starting anything.
func cmdCompose(args []string) error {
	fs := flag.NewFlagSet("compose", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: compose <path.toml>")
	}

	cfg, err := config.FromTOML(fs.Arg(0))
	if err != nil {
		return err
	}
	if cfg.Runtime.NumWorkers <= 0 || cfg.Runtime.Lanes <= 0 || cfg.Runtime.StacksPerWorker <= 0 {
		return fmt.Errorf("compose: runtime.num_workers, runtime.lanes and runtime.stacks_per_worker must all be positive")
	}

	fmt.Printf("workers=%d lanes=%d stacks_per_worker=%d priorities=%d ring_capacity=%d dep_capacity=%d admin_lanes=%v\n",
		cfg.Runtime.NumWorkers, cfg.Runtime.Lanes, cfg.Runtime.StacksPerWorker,
		cfg.Runtime.Priorities, cfg.Runtime.RingCapacity, cfg.Runtime.DepCapacity, cfg.Runtime.AdminLanes)
	fmt.Printf("backend id=%d size_bytes=%d path=%q\n", cfg.Backend.ID, cfg.Backend.SizeBytes, cfg.Backend.Path)
	fmt.Printf("hierarchy flat=%v thread_unit_bytes=%d process_unit_bytes=%d\n",
		cfg.Hierarchy.Flat, cfg.Hierarchy.ThreadUnitBytes, cfg.Hierarchy.ProcessUnitBytes)
	return nil
}

func loadOrDefaultConfig(path string, numWorkers, lanes, stacks int) (*config.Config, error) {
	if path != "" {
		return config.FromTOML(path)
	}
	return config.New(
		config.WithNumWorkers(numWorkers),
		config.WithLanes(lanes),
		config.WithStacksPerWorker(stacks),
		config.WithBackend(config.Backend{ID: 1, SizeBytes: 64 << 20}),
	), nil
}

func buildBackendAndAllocator(cfg *config.Config) (backend.Backend, *hierarchy.Allocator, error) {
	size := cfg.Backend.SizeBytes
	if size == 0 {
		size = 64 << 20
	}

	var be backend.Backend
	var err error
	if cfg.Backend.Path != "" {
		be, err = backend.Create(backend.ID(cfg.Backend.ID), size, cfg.Backend.Path)
	} else {
		be, err = backend.NewMalloc(backend.ID(cfg.Backend.ID), size)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("building backend: %w", err)
	}

	alloc, err := hierarchy.Init(cfg.HierarchyKind(), be, cfg.HierarchyParams())
	if err != nil {
		return be, nil, fmt.Errorf("hierarchy.Init: %w", err)
	}
	return be, alloc, nil
}
