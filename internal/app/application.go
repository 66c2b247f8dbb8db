// Package app is the composition root: it wires the Persistence Gateway,
// Tool Registry, Job Executor, Workflow Engine, Parser Registry, Upsert
// Layer, Import API, and HTTP surface together and manages their lifecycle
// through a system.Manager.
package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	core "github.com/R3E-Network/orchestrator/internal/app/core/service"
	"github.com/R3E-Network/orchestrator/internal/app/encryption"
	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
	"github.com/R3E-Network/orchestrator/internal/app/httpapi"
	"github.com/R3E-Network/orchestrator/internal/app/importapi"
	"github.com/R3E-Network/orchestrator/internal/app/jobs"
	"github.com/R3E-Network/orchestrator/internal/app/notify"
	"github.com/R3E-Network/orchestrator/internal/app/parsers"
	"github.com/R3E-Network/orchestrator/internal/app/storage"
	"github.com/R3E-Network/orchestrator/internal/app/storage/memory"
	"github.com/R3E-Network/orchestrator/internal/app/system"
	"github.com/R3E-Network/orchestrator/internal/app/taskqueue"
	"github.com/R3E-Network/orchestrator/internal/app/toolregistry"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
	engine "github.com/R3E-Network/orchestrator/internal/app/workflow/engine"
	"github.com/R3E-Network/orchestrator/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil Gateway defaults to
// the in-memory implementation, matching this codebase's "absent config is
// defaults" convention.
type Stores struct {
	Gateway storage.Gateway
}

func (s *Stores) applyDefaults(mem *memory.Store) {
	if s.Gateway == nil {
		s.Gateway = mem
	}
}

// RuntimeConfig captures environment-dependent wiring an embedder may
// override explicitly instead of accepting this module's defaults.
type RuntimeConfig struct {
	ToolsFile         string
	MaxConcurrentJobs int
	OutputsRoot       string
	MasterKeyHex      string
	WebhookURL        string
	HTTPAddr          string
}

// Option customises the application runtime.
type Option func(*builderConfig)

type builderConfig struct {
	runtime    RuntimeConfig
	httpClient *http.Client
	skipHTTP   bool
}

// WithRuntimeConfig overrides the runtime configuration used when wiring
// components.
func WithRuntimeConfig(cfg RuntimeConfig) Option {
	return func(b *builderConfig) { b.runtime = cfg }
}

// WithHTTPClient injects a shared HTTP client used by the webhook notifier.
func WithHTTPClient(client *http.Client) Option {
	return func(b *builderConfig) { b.httpClient = client }
}

// WithoutHTTPServer skips registering the HTTP surface as a lifecycle
// service, for embedders that only want the job/workflow engines.
func WithoutHTTPServer() Option {
	return func(b *builderConfig) { b.skipHTTP = true }
}

// Application ties the Job Executor, Workflow Engine, Import API, and HTTP
// surface together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Gateway    storage.Gateway
	Tools      *toolregistry.Registry
	Bus        *eventbus.Bus
	Queue      *taskqueue.Queue
	Jobs       *jobs.Executor
	Parsers    *parsers.Registry
	Upsert     *upsert.Merger
	Workflows  *engine.Engine
	Importer   *importapi.Importer
	Notifier   notify.Notifier
	Encryption *encryption.Collaborator

	descriptors []core.Descriptor
}

// New builds a fully wired application with the provided stores.
func New(stores Stores, log *logger.Logger, opts ...Option) (*Application, error) {
	var options builderConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	stores.applyDefaults(mem)

	runtime := normalizeRuntimeConfig(options.runtime)

	manager := system.NewManager()
	bus := eventbus.New(log)

	tools, err := toolregistry.Load(runtime.ToolsFile)
	if err != nil {
		return nil, fmt.Errorf("app: load tool registry: %w", err)
	}

	var enc *encryption.Collaborator
	if runtime.masterKey != nil {
		enc, err = encryption.New(runtime.masterKey)
		if err != nil {
			return nil, fmt.Errorf("app: init encryption collaborator: %w", err)
		}
	}

	merger := upsert.New(stores.Gateway, enc)
	parserReg := parsers.Default()

	queue := taskqueue.New(runtime.maxConcurrentJobs, log)
	if err := manager.Register(queue); err != nil {
		return nil, fmt.Errorf("app: register task queue: %w", err)
	}

	jobExec := jobs.New(stores.Gateway, tools, bus, parserReg, merger, queue, runtime.outputsRoot, log)

	if _, err := queue.Schedule("@every 1m", "scheduled-jobs-sweep", scheduledJobsSweep(stores.Gateway, queue, jobExec, log)); err != nil {
		return nil, fmt.Errorf("app: schedule scheduled-jobs sweep: %w", err)
	}

	// NewWebhookNotifier's Notify is already a no-op when url is empty, so an
	// unconfigured webhook URL degrades gracefully without a separate type.
	var notifier notify.Notifier = notify.NewWebhookNotifier(runtime.webhookURL, options.httpClient, log)

	workflowEngine := engine.New(stores.Gateway, bus, jobExec, notifier, log)

	importer := importapi.New(stores.Gateway, parserReg, merger)

	app := &Application{
		manager:    manager,
		log:        log,
		Gateway:    stores.Gateway,
		Tools:      tools,
		Bus:        bus,
		Queue:      queue,
		Jobs:       jobExec,
		Parsers:    parserReg,
		Upsert:     merger,
		Workflows:  workflowEngine,
		Importer:   importer,
		Notifier:   notifier,
		Encryption: enc,
	}

	if !options.skipHTTP {
		httpSvc := httpapi.NewService(runtime.httpAddr, importer, bus, log)
		if err := manager.Register(httpSvc); err != nil {
			return nil, fmt.Errorf("app: register http service: %w", err)
		}
	}

	app.descriptors = manager.Descriptors()
	return app, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services (Task Queue, HTTP surface, ...).
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Descriptors returns advertised service descriptors for introspection.
func (a *Application) Descriptors() []core.Descriptor {
	out := make([]core.Descriptor, len(a.descriptors))
	copy(out, a.descriptors)
	return out
}

// scheduledJobsSweep returns the Callable registered against the Task
// Queue's "@every 1m" cron entry: it promotes every due scheduled job
// (queued, with ScheduledAt at or before now) to actual execution. Each due
// job is handed back to the queue individually so a large batch runs with
// the queue's normal bounded concurrency instead of serially inside the
// sweep itself.
func scheduledJobsSweep(gateway storage.Gateway, queue *taskqueue.Queue, jobExec *jobs.Executor, log *logger.Logger) taskqueue.Callable {
	const sweepBatchLimit = 100
	return func(ctx context.Context) error {
		due, err := gateway.ListDueScheduledJobs(ctx, time.Now(), sweepBatchLimit)
		if err != nil {
			return fmt.Errorf("app: list due scheduled jobs: %w", err)
		}
		for _, j := range due {
			jobID := j.ID
			log.WithField("job_id", jobID).Info("app: promoting due scheduled job")
			queue.Enqueue("run-job:"+jobID.String(), func(ctx context.Context) error {
				return jobExec.RunJob(ctx, jobID)
			})
		}
		return nil
	}
}

type normalizedRuntime struct {
	toolsFile         string
	maxConcurrentJobs int
	outputsRoot       string
	masterKey         []byte
	webhookURL        string
	httpAddr          string
}

func normalizeRuntimeConfig(cfg RuntimeConfig) normalizedRuntime {
	toolsFile := cfg.ToolsFile
	if toolsFile == "" {
		toolsFile = "configs/tools.yaml"
	}
	maxJobs := cfg.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 10
	}
	outputsRoot := cfg.OutputsRoot
	if outputsRoot == "" {
		outputsRoot = "/var/lib/orchestrator/jobs"
	}
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = "0.0.0.0:8080"
	}

	var masterKey []byte
	if cfg.MasterKeyHex != "" {
		if decoded, err := hex.DecodeString(cfg.MasterKeyHex); err == nil {
			masterKey = decoded
		}
	}

	return normalizedRuntime{
		toolsFile:         toolsFile,
		maxConcurrentJobs: maxJobs,
		outputsRoot:       outputsRoot,
		masterKey:         masterKey,
		webhookURL:        cfg.WebhookURL,
		httpAddr:          addr,
	}
}
