package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/devildex/devildex/internal/backends"
	"github.com/devildex/devildex/internal/config"
	"github.com/devildex/devildex/internal/daemon"
	"github.com/devildex/devildex/internal/docset"
	"github.com/devildex/devildex/internal/fetcher"
	"github.com/devildex/devildex/internal/registry"
	"github.com/devildex/devildex/internal/scanner"
	"github.com/devildex/devildex/internal/scheduler"
	"github.com/devildex/devildex/internal/server"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"devildex.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
	} `cmd:"" help:"Run the build daemon with the HTTP signal server"`

	Register struct {
		Name        string `arg:"" help:"Project name"`
		Root        string `arg:"" help:"Project root path"`
		Interpreter string `help:"Interpreter or environment reference"`
	} `cmd:"" help:"Register a project without a package snapshot"`

	Ingest struct {
		ScanFile string `arg:"" help:"Scan result JSON emitted by the environment probe"`
		Build    bool   `short:"b" help:"Build all ingested packages before exiting"`
	} `cmd:"" help:"Register a project snapshot from a scan result"`

	Build struct {
		Target string `arg:"" help:"Docset target as name@version/backend"`
	} `cmd:"" help:"Run one build to completion and exit"`

	List struct {
		Projects bool `help:"List registered projects instead of docsets"`
	} `cmd:"" help:"List docsets known to the registry"`

	Delete struct {
		Target string `arg:"" help:"Docset target as name@version/backend"`
	} `cmd:"" help:"Delete a docset and its generated files"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := loadConfig(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	switch ctx.Command() {
	case "serve":
		err = runServe(cfg, CLI.Config)
	case "register <name> <root>":
		err = runRegister(cfg, CLI.Register.Name, CLI.Register.Root, CLI.Register.Interpreter)
	case "ingest <scan-file>":
		err = runIngest(cfg, CLI.Ingest.ScanFile, CLI.Ingest.Build)
	case "build <target>":
		err = runBuild(cfg, CLI.Build.Target)
	case "list":
		err = runList(cfg, CLI.List.Projects)
	case "delete <target>":
		err = runDelete(cfg, CLI.Delete.Target)
	default:
		err = fmt.Errorf("unknown command %q", ctx.Command())
	}
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "devildex.yaml" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runServe(cfg *config.Config, configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "" // nothing to watch
	}
	d, err := daemon.New(cfg, configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

func runRegister(cfg *config.Config, name, root, interpreter string) error {
	env, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	project, err := env.store.RegisterProject(context.Background(), docset.Project{
		Name:        name,
		RootPath:    abs,
		Interpreter: interpreter,
	})
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", project.Name, project.RootPath)
	return nil
}

func runIngest(cfg *config.Config, scanFile string, build bool) error {
	result, err := scanner.ParseFile(scanFile)
	if err != nil {
		return err
	}

	env, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	ctx := context.Background()
	project, err := env.store.RegisterProject(ctx, result.Project)
	if err != nil {
		return err
	}
	if err := env.store.ReplacePackages(ctx, project.ID, result.Packages); err != nil {
		return err
	}
	fmt.Printf("registered %s with %d packages\n", project.Name, len(result.Packages))

	if !build {
		return nil
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env.sched.Start(runCtx)
	defer env.sched.Stop()

	failed := 0
	for _, pkg := range result.Packages {
		handle, err := env.sched.RequestPackage(runCtx, pkg, scheduler.TriggerIngest)
		if err != nil {
			slog.Warn("Enqueuing build failed", "package", pkg.Name, "error", err)
			failed++
			continue
		}
		state, err := handle.Wait(runCtx)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", handle.Target, state)
		if state != registry.TaskSucceeded {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d builds did not succeed", failed, len(result.Packages))
	}
	return nil
}

func runBuild(cfg *config.Config, rawTarget string) error {
	target, err := parseTarget(rawTarget)
	if err != nil {
		return err
	}

	env, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env.sched.Start(ctx)
	defer env.sched.Stop()

	handle, err := env.sched.Request(ctx, target, scheduler.TriggerManual)
	if err != nil {
		return err
	}
	state, err := handle.Wait(ctx)
	if err != nil {
		return err
	}

	rec := handle.Snapshot()
	if state != registry.TaskSucceeded {
		return fmt.Errorf("build %s: %s", state, rec.Error)
	}
	fmt.Printf("%s built: %s\n", target, rec.OutputPath)
	return nil
}

func runList(cfg *config.Config, projects bool) error {
	env, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if projects {
		list, err := env.store.ListProjects(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "NAME\tROOT\tREGISTERED")
		for _, p := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.RootPath, p.RegisteredAt.Format(time.RFC3339))
		}
		return nil
	}

	docsets, err := env.store.ListDocsets(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "TARGET\tBUILD\tSTATUS\tOUTPUT")
	for _, ds := range docsets {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", ds.Target, ds.BuildID, ds.Status, ds.OutputPath)
	}
	return nil
}

func runDelete(cfg *config.Config, rawTarget string) error {
	target, err := parseTarget(rawTarget)
	if err != nil {
		return err
	}

	env, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	ctx := context.Background()
	ds, err := env.store.GetDocset(ctx, target)
	if err != nil {
		return err
	}
	if err := env.store.DeleteDocset(ctx, target); err != nil {
		return err
	}
	if ds.OutputPath != "" {
		if err := os.RemoveAll(ds.OutputPath); err != nil {
			slog.Warn("Removing docset output failed", "path", ds.OutputPath, "error", err)
		}
	}
	if err := server.NewSignalWriter(cfg.DocsetDir).Remove(target); err != nil {
		slog.Warn("Removing signal artifact failed", "target", target, "error", err)
	}
	fmt.Printf("deleted %s\n", target)
	return nil
}

// env bundles the store and a one-shot scheduler for CLI commands that run
// without the daemon.
type env struct {
	store registry.Store
	sched *scheduler.Scheduler
}

func newEnv(cfg *config.Config) (*env, error) {
	store, err := registry.NewSQLiteStore(filepath.Join(cfg.DataDir, "registry.db"))
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scheduler.Options{
		Store:    store,
		Adapters: backends.NewRegistry(cfg.Backends),
		Sources:  fetcher.New(cfg.Backends.FetchDir),
		Fingerprints: docset.Resolver{
			AdapterVersion: backends.AdapterVersion,
			ThemeVersion:   cfg.Backends.ThemeVersion,
		},
		Policy:       cfg.Retry.Policy(),
		DocsetDir:    cfg.DocsetDir,
		WorkDir:      filepath.Join(cfg.DataDir, "work"),
		Workers:      cfg.Scheduler.Workers,
		HistorySize:  cfg.Scheduler.HistorySize,
		BuildTimeout: cfg.Scheduler.BuildTimeout.Std(),
	})
	return &env{store: store, sched: sched}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		slog.Warn("Closing registry failed", "error", err)
	}
}

// parseTarget parses the canonical name@version/backend form.
func parseTarget(raw string) (docset.Target, error) {
	name, rest, ok := strings.Cut(raw, "@")
	if !ok {
		return docset.Target{}, fmt.Errorf("target %q: want name@version/backend", raw)
	}
	version, backendStr, ok := strings.Cut(rest, "/")
	if !ok {
		return docset.Target{}, fmt.Errorf("target %q: want name@version/backend", raw)
	}
	backend, err := docset.ParseBackendKind(backendStr)
	if err != nil {
		return docset.Target{}, err
	}
	t := docset.Target{PackageName: docset.NormalizeName(name), Version: version, Backend: backend}
	return t, t.Validate()
}
