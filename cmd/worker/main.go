// Package main is the worker process entry point: it loads configuration,
// signs on to the shared database, gathers the host's hardware snapshot,
// and runs the Main Loop described in spec.md §4.6 until its idle-exit
// window elapses or it receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/edacc-worker/internal/adapter/observability"
	"github.com/fairyhunter13/edacc-worker/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/edacc-worker/internal/artifactstore"
	"github.com/fairyhunter13/edacc-worker/internal/config"
	"github.com/fairyhunter13/edacc-worker/internal/control"
	"github.com/fairyhunter13/edacc-worker/internal/domain"
	"github.com/fairyhunter13/edacc-worker/internal/executor"
	"github.com/fairyhunter13/edacc-worker/internal/hostinfo"
	"github.com/fairyhunter13/edacc-worker/internal/jobserverclient"
	"github.com/fairyhunter13/edacc-worker/internal/scheduler"
	"github.com/fairyhunter13/edacc-worker/internal/signalscope"
	"github.com/fairyhunter13/edacc-worker/internal/worker"
)

const configPath = "./config"

func main() {
	flags, ok := config.ParseFlags(os.Args[1:], os.Stdout)
	if !ok {
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	var logFile string
	if flags.LogToFile {
		ip := hostinfo.LocalIP()
		hostname, _ := os.Hostname()
		logFile = observability.LogFileName(hostname, ip, os.Getpid())
	}
	logger := observability.SetupLogger(cfg, flags.Verbosity, logFile)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting edacc worker", slog.String("env", cfg.AppEnv), slog.Bool("simulate", flags.Simulate))

	jobsWaitTime := time.Duration(flags.WaitJobsTime) * time.Second
	ctx, stop := signal.NotifyContext(context.Background(), signalscope.Signals...)
	defer stop()

	pool, err := postgres.NewPoolWithRetry(ctx, postgres.DSN(cfg), jobsWaitTime)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	gw := postgres.NewGateway(pool, jobsWaitTime)

	host, err := hostinfo.Gather(ctx)
	if err != nil {
		slog.Error("host info gathering failed", slog.Any("error", err))
		os.Exit(1)
	}

	gridQueue, err := gw.GridQueueByName(ctx, cfg.GridQueue)
	if err != nil {
		slog.Error("grid queue lookup failed", slog.Any("error", err), slog.String("gridqueue", cfg.GridQueue))
		os.Exit(1)
	}
	if err := worker.CheckHomogeneity(host, gridQueue, flags.AllowInhomogeneous); err != nil {
		slog.Error("homogeneity check failed", slog.Any("error", err))
		os.Exit(1)
	}

	var methods domain.Methods = gw
	if flags.Simulate {
		sim, err := worker.NewSimulated(ctx, gw, gridQueue.ID)
		if err != nil {
			slog.Error("simulation init failed", slog.Any("error", err))
			os.Exit(1)
		}
		methods = sim
		defer func() {
			for _, line := range sim.Summary(context.Background()) {
				slog.Info(line)
			}
		}()
	}

	clientID, err := methods.SignOn(ctx, host, gridQueue.ID)
	if err != nil {
		slog.Error("sign on failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("signed on", slog.Int("client_id", clientID), slog.String("gridqueue", cfg.GridQueue))

	numSlots := gridQueue.NumCPUs
	if numSlots <= 0 {
		numSlots = host.NumCores
	}
	if numSlots <= 0 {
		numSlots = 1
	}

	solverStore := &artifactstore.Store{
		Methods:      methods,
		BasePath:     flags.BasePath,
		FilesystemID: gridQueue.ID,
		Fetch:        artifactFetcher(methods, domain.ArtifactSolver),
	}
	instanceStore := &artifactstore.Store{
		Methods:      methods,
		BasePath:     flags.BasePath,
		FilesystemID: gridQueue.ID,
		Fetch:        artifactFetcher(methods, domain.ArtifactInstance),
	}

	sched := &scheduler.Scheduler{
		Methods:       methods,
		GridQueueID:   gridQueue.ID,
		ClientID:      clientID,
		ComputeNode:   host.Hostname,
		ComputeNodeIP: host.IP,
	}

	exec := &executor.Executor{
		Methods:        methods,
		GridQueueID:    gridQueue.ID,
		ResultsDir:     flags.BasePath + "/results",
		WatcherPath:    flags.BasePath + "/runsolver",
		SolverBasePath: flags.BasePath,
		Database:       cfg.Database,
		VerifierCmd:    cfg.Verifier,
		KeepOutput:     flags.KeepOutput,
	}

	ctrl := control.New(methods, clientID)
	ctrl.Start(ctx)
	defer ctrl.Stop()

	var jobServer *jobserverclient.Client
	if cfg.JobServerHost != "" {
		jobServer = jobserverclient.New(cfg.JobServerHost, cfg.JobServerPort, cfg.Database,
			cfg.JobServerUsername, cfg.JobServerPassword)
		defer jobServer.Close()
	}

	w := worker.New(&worker.Worker{
		Methods:       methods,
		ClientID:      clientID,
		GridQueueID:   gridQueue.ID,
		NumSlots:      numSlots,
		Scheduler:     sched,
		Executor:      exec,
		SolverStore:   solverStore,
		InstanceStore: instanceStore,
		Control:       ctrl,
		WaitJobsTime:  jobsWaitTime,
		Backoff:       executor.NewIdleBackoff(time.Duration(flags.CheckJobsInterval) * time.Millisecond),
		JobServer:     jobServer,
	})

	hostDescription := fmt.Sprintf("%s (%d cores, %s)", host.Hostname, host.NumCores, host.CPUModel)
	if err := w.Run(ctx, hostDescription); err != nil {
		slog.Error("main loop exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

// artifactFetcher adapts Methods.ArtifactBlob into the artifactstore.Fetcher
// shape for one fixed ArtifactKind, since each Store is bound to a single
// artifact kind (solver binaries or instances) for its lifetime.
func artifactFetcher(methods domain.Methods, k domain.ArtifactKind) artifactstore.Fetcher {
	return func(ctx context.Context, binaryID int) ([]byte, error) {
		return methods.ArtifactBlob(ctx, k, binaryID)
	}
}
