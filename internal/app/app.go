// Package app wires the client runtime together: backend clients, the
// session, the repositories and view-models, plus two local HTTP
// endpoints -- the auth callback listener and the prometheus metrics
// server.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/velofit/velofit/internal/assistant"
	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/cache"
	"github.com/velofit/velofit/internal/calendar"
	"github.com/velofit/velofit/internal/chat"
	"github.com/velofit/velofit/internal/clients"
	"github.com/velofit/velofit/internal/community"
	"github.com/velofit/velofit/internal/config"
	"github.com/velofit/velofit/internal/connections"
	"github.com/velofit/velofit/internal/dashboard"
	"github.com/velofit/velofit/internal/formcheck"
	"github.com/velofit/velofit/internal/middleware"
	"github.com/velofit/velofit/internal/session"
	"github.com/velofit/velofit/internal/subscriptions"
	"github.com/velofit/velofit/internal/telemetry/metrics"
	"github.com/velofit/velofit/internal/telemetry/tracing"
	"github.com/velofit/velofit/internal/templates"
	"github.com/velofit/velofit/internal/vbt"
	"github.com/velofit/velofit/internal/workouts"
	"github.com/velofit/velofit/pkg"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type App struct {
	config         *config.Config
	callbackServer *http.Server
	metricsServer  *http.Server

	sessionCache *cache.SessionCache
	Session      *session.Manager
	api          *backend.Client
	storage      *backend.Storage
	realtime     *backend.Realtime

	Clients       *clients.Repo
	Workouts      *workouts.Repo
	Templates     *templates.Repo
	Chat          *chat.Repo
	Calendar      *calendar.Repo
	Subscriptions *subscriptions.Repo
	Community     *community.Repo
	Feed          *community.Feed
	Connections   *connections.Repo
	FormChecks    *formcheck.Repo
	Assistant     *assistant.Client
	VBT           *vbt.Repo
	Analyzer      *vbt.Analyzer

	listenerMu sync.Mutex
	listener   *connections.Listener

	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewAppParams struct {
	Config         *config.Config
	APIKey         string
	TracingEnabled bool
}

func NewApp(params NewAppParams) (*App, error) {
	cfg := params.Config

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("velofit", "client", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	otelShutdown, err := tracing.Setup(params.TracingEnabled, "velofit-client")
	if err != nil {
		return nil, err
	}

	tracedHTTPClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   time.Duration(cfg.RequestTimeout) * time.Second,
	}

	sessionCache := cache.NewSessionCache(cfg.SessionCacheMB, metricsManager)
	authClient := backend.NewAuthClient(cfg.APIBaseURL, params.APIKey, tracedHTTPClient)
	sessionManager := session.NewManager(authClient, sessionCache)

	api := backend.NewClient(cfg.APIBaseURL, params.APIKey, sessionManager, tracedHTTPClient, metricsManager)
	storage := backend.NewStorage(cfg.APIBaseURL, params.APIKey, sessionManager, tracedHTTPClient)
	realtime := backend.NewRealtime(cfg.RealtimeURL, params.APIKey, sessionManager, metricsManager)

	communityRepo := community.NewRepo(api)
	subscriptionsRepo := subscriptions.NewRepo(api, sessionCache)

	a := &App{
		config:       cfg,
		sessionCache: sessionCache,
		Session:      sessionManager,
		api:          api,
		storage:      storage,
		realtime:     realtime,

		Clients:       clients.NewRepo(api, storage, sessionCache, cfg.StorageBucket),
		Workouts:      workouts.NewRepo(api, sessionCache),
		Templates:     templates.NewRepo(api, sessionCache),
		Chat:          chat.NewRepo(api),
		Calendar:      calendar.NewRepo(api),
		Subscriptions: subscriptionsRepo,
		Community:     communityRepo,
		Feed:          community.NewFeed(communityRepo, metricsManager),
		Connections:   connections.NewRepo(api),
		FormChecks:    formcheck.NewRepo(api, storage, cfg.FormCheckBucket),
		Assistant:     assistant.NewClient(api),
		VBT:           vbt.NewRepo(api),
		Analyzer:      vbt.NewAnalyzer(),

		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	// everything user-scoped dies with the session
	sessionManager.OnSignOut(func() {
		subscriptionsRepo.ClearState()
		a.StopConnectionListener()
	})

	return a, nil
}

// NewDashboard builds the home screen view-model for the signed-in coach.
func (a *App) NewDashboard() (*dashboard.ViewModel, error) {
	user, ok := a.Session.CurrentUser()
	if !ok {
		return nil, backend.ErrNotAuthenticated
	}
	return dashboard.NewViewModel(
		a.Clients, a.Calendar, a.Chat, a.Connections, a.Subscriptions, user.ID,
	), nil
}

// StartConnectionListener opens the realtime pending-requests feed for
// the signed-in user, replacing a previously started one. Stopped
// automatically on sign-out.
func (a *App) StartConnectionListener(ctx context.Context) (*connections.Listener, error) {
	user, ok := a.Session.CurrentUser()
	if !ok {
		return nil, backend.ErrNotAuthenticated
	}

	// the lock is held across the start so a racing sign-out can neither
	// leak a freshly started listener nor stop one twice
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	if a.listener != nil {
		a.listener.Stop()
		a.listener = nil
	}

	listener := connections.NewListener(a.realtime, a.Connections, user.ID)
	if err := listener.Start(ctx); err != nil {
		return nil, err
	}
	a.listener = listener
	return listener, nil
}

func (a *App) StopConnectionListener() {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	if a.listener != nil {
		a.listener.Stop()
		a.listener = nil
	}
}

// NewLiveSession starts velocity monitoring for one exercise with the
// configured velocity-loss stop threshold.
func (a *App) NewLiveSession(exercise string, loadKg float64) (*vbt.LiveSession, error) {
	return vbt.NewLiveSession(exercise, loadKg, float64(a.config.VelocityLossPct))
}

func (a *App) callbackRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("callback-router"))

	r.HandleFunc("/callback", a.handleAuthCallback).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteTextResponseOK(w, "ok")
	}).Methods("GET")

	r.Use(middleware.PanicRecovery(a.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(a.metricsManager))

	return r
}

// handleAuthCallback receives the browser redirect after email
// verification, password recovery or OAuth-style sign-in, and applies the
// token payload to the session.
func (a *App) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	a.metricsManager.CounterDeepLinks.Inc()

	if err := a.Session.HandleDeepLink(r.URL.String()); err != nil {
		log.Errorf("auth callback: %s", err)
		pkg.WriteResponseBytes(
			w, pkg.ContentType.Text,
			[]byte("sign-in link could not be applied"),
			http.StatusBadRequest,
		)
		return
	}

	pkg.WriteTextResponseOK(w, "signed in, you can return to the app")
}

// Serve starts the callback and metrics servers. Returns immediately;
// the servers run until GracefulShutdown.
func (a *App) Serve() {
	callbackAddr := net.JoinHostPort(a.config.CallbackHost, strconv.Itoa(a.config.CallbackPort))
	a.callbackServer = &http.Server{
		Handler:      a.callbackRouter(),
		Addr:         callbackAddr,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		a.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(a.config.PrometheusMetricsHost, a.config.PrometheusMetricsPort)
	a.metricsServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > auth callback listening on: [%s]", callbackAddr)
		err := a.callbackServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("callback server, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := a.metricsServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics server, listen and serve: %s", err)
		}
	}()

	a.metricsManager.GaugeLifeSignal.Set(1)
}

func (a *App) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	a.metricsManager.GaugeLifeSignal.Set(0)

	a.StopConnectionListener()
	a.Session.StopAutoRefresh()
	a.Feed.Close()

	a.otelShutdown()
	log.Trace("otel shut down ...")

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if a.callbackServer != nil {
		if err := a.callbackServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown callback server")
		}
	}
	log.Warnln("callback server shut down")

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics server")
		}
	}
	log.Warnln("metrics server shut down")
}
