package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/bombsimon/logrusr/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"taskline/internal/config"
	"taskline/internal/controller"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/journal"
	"taskline/internal/metrics"
	"taskline/internal/migrate"
	"taskline/internal/repo"
	"taskline/internal/server"
)

// ShutdownTimeout bounds http.Server.Shutdown once the process is stopping.
const ShutdownTimeout = 5 * time.Second

// App holds every long-lived component of a running operator. It is built
// once in New and passed around explicitly.
type App struct {
	Config  *config.Config
	Log     *logrus.Logger
	Manager ctrl.Manager
	Engine  engine.Engine
	Handler http.Handler
	Metrics *metrics.Metrics

	journalDB *sql.DB
}

// NewScheme registers the built-in API types and the Task types.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, err
	}
	if err := domain.AddToScheme(scheme); err != nil {
		return nil, err
	}
	return scheme, nil
}

// New resolves the cluster connection with the standard kubeconfig rules and
// builds the App. The API server must be reachable.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	ctrl.SetLogger(logrusr.New(log))
	restCfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, domain.Configf("kubernetes client config: %v", err)
	}
	return NewForConfig(ctx, cfg, log, restCfg)
}

// NewForConfig builds the App against an explicit REST config.
func NewForConfig(ctx context.Context, cfg *config.Config, log *logrus.Logger, restCfg *rest.Config) (*App, error) {
	if err := ping(restCfg); err != nil {
		return nil, err
	}
	scheme, err := NewScheme()
	if err != nil {
		return nil, err
	}
	mgr, err := ctrl.NewManager(restCfg, ctrl.Options{
		Scheme:                 scheme,
		Logger:                 logrusr.New(log),
		Metrics:                metricsserver.Options{BindAddress: "0"},
		HealthProbeBindAddress: "0",
	})
	if err != nil {
		return nil, domain.Orchestrator(err)
	}

	m := metrics.New(ctrlmetrics.Registry)
	a := &App{Config: cfg, Log: log, Manager: mgr, Metrics: m}

	r := repo.Repo{Client: mgr.GetClient()}
	var j engine.Journal
	if cfg.JournalPath != "" {
		conn, err := openJournal(ctx, cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		a.journalDB = conn
		j = journal.Writer{DB: conn}
		log.WithField("path", cfg.JournalPath).Info("invocation journal enabled")
	}
	a.Engine = engine.New(r, r, j, cfg.DefaultNamespace, m)

	reconciler := &controller.TaskReconciler{
		Client:  mgr.GetClient(),
		Log:     log.WithField("component", "controller"),
		Metrics: m,
	}
	if err := reconciler.SetupWithManager(mgr); err != nil {
		a.Close()
		return nil, domain.Orchestrator(err)
	}

	a.Handler, err = server.New(server.Config{
		Engine:   a.Engine,
		Auth:     server.AuthConfig{JWTSecret: cfg.JWTSecret},
		Log:      log,
		Gatherer: ctrlmetrics.Registry,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Run serves HTTP and runs the controller manager until ctx is cancelled or
// either of them stops. The first error wins.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{Addr: a.Config.Addr(), Handler: a.Handler}

	g.Go(func() error {
		defer cancel()
		a.Log.Info("starting controller")
		return a.Manager.Start(ctx)
	})
	g.Go(func() error {
		defer cancel()
		a.Log.WithField("addr", srv.Addr).Info("serving taskline API (OpenAPI at /openapi.json, docs at /docs)")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close releases the journal database, if any.
func (a *App) Close() {
	if a.journalDB != nil {
		a.journalDB.Close()
		a.journalDB = nil
	}
}

func openJournal(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Path: path})
	if err != nil {
		return nil, domain.Configf("open journal %s: %v", path, err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, domain.Configf("migrate journal: %v", err)
	}
	return conn, nil
}

// ping fails fast when the API server cannot be reached.
func ping(restCfg *rest.Config) error {
	cs, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return domain.Configf("kubernetes client: %v", err)
	}
	if _, err := cs.Discovery().ServerVersion(); err != nil {
		return domain.Orchestrator(err)
	}
	return nil
}
