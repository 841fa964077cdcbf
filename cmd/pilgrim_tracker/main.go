// Command pilgrim_tracker runs the pilgrim group map screen as a daemon: it
// samples a location sensor, tracks the group, routes to members and help
// desks, and exposes the screen's actions over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pilgrimsafe/tracker/internal/api"
	"github.com/pilgrimsafe/tracker/internal/config"
	"github.com/pilgrimsafe/tracker/internal/dispatcher"
	"github.com/pilgrimsafe/tracker/internal/hint"
	"github.com/pilgrimsafe/tracker/internal/httpapi"
	"github.com/pilgrimsafe/tracker/internal/logging"
	"github.com/pilgrimsafe/tracker/internal/mapscreen"
	"github.com/pilgrimsafe/tracker/internal/mapview/headless"
	"github.com/pilgrimsafe/tracker/internal/mapview/stream"
	"github.com/pilgrimsafe/tracker/internal/membership"
	"github.com/pilgrimsafe/tracker/internal/monitor"
	intOtel "github.com/pilgrimsafe/tracker/internal/otel"
	"github.com/pilgrimsafe/tracker/internal/routing"
	"github.com/pilgrimsafe/tracker/internal/sampler"
	"github.com/pilgrimsafe/tracker/internal/schedule"
	"github.com/pilgrimsafe/tracker/internal/sensor"
	"github.com/pilgrimsafe/tracker/internal/storage"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion = "0.0.1"
	BuildDate      = "unknown"

	AppName = "pilgrim_tracker"
)

const (
	inboxSize       = 1024
	frameRateHz     = 60
	hintsPerMinute  = 30
	recordQueueSize = 4096
	shutdownTimeout = 10 * time.Second
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime = time.Now()
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return
	}

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}
	cfg, err := config.Get()
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()

	// logging
	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	logFilePath := logging.LogFilePath(cfg.LogsDir, AppName, sessionID, SessionStartTime)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}
	defer logFile.Close()
	logOut := io.MultiWriter(os.Stdout, logFile)

	otelCfg := intOtel.Config{
		Enabled:      cfg.OTel.Enabled,
		ServiceName:  cfg.OTel.ServiceName,
		BatchTimeout: cfg.OTel.BatchTimeout,
		Endpoint:     cfg.OTel.Endpoint,
		Insecure:     cfg.OTel.Insecure,
		SessionID:    sessionID,
	}
	if cfg.OTel.Enabled && cfg.OTel.Endpoint == "" {
		otelFile, err := os.Create(filepath.Join(cfg.LogsDir, fmt.Sprintf("%s.%s.otel.log", AppName, SessionStartTime.Format("20060102_150405"))))
		if err != nil {
			return fmt.Errorf("failed to create otel log file: %w", err)
		}
		defer otelFile.Close()
		otelCfg.LogWriter = otelFile
	}
	OTelProvider, err = intOtel.New(otelCfg)
	if err != nil {
		return fmt.Errorf("failed to set up OpenTelemetry: %w", err)
	}

	var extra []slog.Handler
	if cfg.Graylog.Enabled {
		h, closer, err := logging.NewGraylogHandler(cfg.Graylog.Address, cfg.LogLevel)
		if err != nil {
			Logger.Warn("Graylog disabled", "error", err)
		} else {
			defer closer.Close()
			extra = append(extra, h)
		}
	}
	SlogManager.Setup(logOut, cfg.LogLevel, OTelProvider.LoggerProvider(), extra...)

	// every record carries the session and the current map mode
	var screenRef atomic.Pointer[mapscreen.Screen]
	Logger = slog.New(logging.NewContextHandler(SlogManager.Logger().Handler(), func() []slog.Attr {
		if s := screenRef.Load(); s != nil {
			return s.LogAttrs()
		}
		return []slog.Attr{slog.String("session", sessionID)}
	}))
	Logger.Info("Starting up", "version", CurrentVersion, "buildDate", BuildDate, "logFile", logFilePath)

	ref, err := config.LoadReference(cfg.ReferenceFile)
	if err != nil {
		return err
	}
	Logger.Info("Loaded reference data",
		"helpCenters", len(ref.HelpCenters),
		"members", len(ref.Group.Members),
		"emergencyNumbers", len(ref.EmergencyNumbers))

	// owner loop
	d, err := dispatcher.New(Logger.With("component", "dispatcher"), inboxSize)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := schedule.NewLoop(d, frameRateHz)

	// storage
	backend, err := createStorageBackend(cfg, SlogManager, logOut)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer backend.Close()
	hostname, _ := os.Hostname()
	session := &core.Session{
		ID:        sessionID,
		StartTime: SessionStartTime,
		GroupName: ref.Group.Name,
		Device:    hostname,
	}
	if err := backend.StartSession(session); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	recorder := storage.NewRecorder(backend, Logger.With("component", "storage")).Queue(d, recordQueueSize)

	// collaborators
	sim := sensor.NewSimulator(sensor.Config{
		Interval:     cfg.Sensor.Interval,
		Start:        core.LatLng{Lat: cfg.Sensor.StartLat, Lng: cfg.Sensor.StartLng},
		SpeedMps:     cfg.Sensor.SpeedMps,
		JitterMeters: cfg.Sensor.JitterMeters,
		Waypoints:    helpCenterPositions(ref.HelpCenters),
	}, d, nil, Logger.With("component", "sensor"))

	nowMs := time.Now().UnixMilli()
	seeds := make([]core.MemberUpdate, 0, len(ref.Group.Members))
	for _, m := range ref.Group.Members {
		seeds = append(seeds, m.Update(nowMs))
	}
	members := membership.NewStore(d, Logger.With("component", "membership"), seeds...)
	stopDrift := members.StartDrift(membership.DriftConfig{
		Interval: cfg.Membership.DriftInterval,
		Meters:   cfg.Membership.DriftMeters,
	}, nil)
	defer stopDrift()

	router, err := routing.NewAsync(routingProvider(cfg.Routing), d, cfg.Routing.Timeout, Logger.With("component", "routing"))
	if err != nil {
		return fmt.Errorf("failed to create routing service: %w", err)
	}

	var surface mapapi.Map
	if cfg.MapStream.Enabled {
		sm := stream.New(stream.Config{URL: cfg.MapStream.URL, Secret: cfg.MapStream.Secret}, d, Logger.With("component", "map"))
		sm.Start()
		defer sm.Close()
		surface = sm
	} else {
		surface = headless.New(Logger.With("component", "map"))
	}

	screen, err := mapscreen.New(mapscreen.Config{
		SessionID:         sessionID,
		Sampler:           sampler.Config{MinInterval: cfg.Sampler.MinInterval, MaxInterval: cfg.Sampler.MaxInterval},
		AnimationDuration: cfg.Animation.Duration,
		RecentPathLimit:   cfg.Tracking.RecentPathLimit,
		HighlightDuration: cfg.Hint.Highlight,
		OnlineWindow:      cfg.Tracking.OnlineWindow,
		DefaultCenter:     core.LatLng{Lat: cfg.View.DefaultLat, Lng: cfg.View.DefaultLng},
		DefaultZoom:       cfg.View.DefaultZoom,
		RecenterZoom:      cfg.View.RecenterZoom,
		HintZoom:          cfg.View.HintZoom,
		FitPaddingPx:      cfg.Route.FitPaddingPx,
	}, mapscreen.Deps{
		Map:         surface,
		Sensor:      sim,
		Feed:        members,
		Router:      router,
		Scheduler:   loop,
		HelpCenters: ref.HelpCenters,
		Recorder:    recorder,
		Logger:      Logger.With("component", "mapscreen"),
		Rand:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	})
	if err != nil {
		return err
	}
	screenRef.Store(screen)
	screen.RegisterHandlers(d)

	// Handlers are all registered; work posted so far runs once the loop starts.
	loopErr := make(chan error, 1)
	go func() { loopErr <- d.Run(loopCtx) }()
	if err := d.Post(screen.Start); err != nil {
		return fmt.Errorf("failed to start map screen: %w", err)
	}

	// center hints
	bus := hint.NewBus(cfg.Hint.BufferSize)
	hintsDone := make(chan struct{})
	go func() {
		defer close(hintsDone)
		bus.Run(loopCtx, func(h core.CenterHint) {
			res, err := d.Request(loopCtx, dispatcher.Event{Command: mapscreen.CmdHint, Payload: h, Timestamp: time.Now()})
			if err != nil {
				Logger.Warn("Failed to deliver center hint", "hint", h.ID, "error", err)
				return
			}
			if accepted, _ := res.(bool); accepted {
				recorder.RecordHint(sessionID, h)
			}
		})
	}()

	// HTTP API
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(httpapi.Deps{
		Loop:             d,
		Hints:            bus,
		Members:          members,
		HelpCenters:      ref.HelpCenters,
		EmergencyNumbers: ref.EmergencyNumbers,
		Logger:           Logger.With("component", "http"),
		HintRateLimit:    hintsPerMinute,
	}), Logger)
	if _, err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP API: %w", err)
	}

	monitorService, err := monitor.NewService(monitor.Dependencies{
		Loop:       d,
		Storage:    backend,
		StatusPath: filepath.Join(cfg.LogsDir, "status.json"),
		Logger:     Logger.With("component", "monitor"),
	})
	if err != nil {
		return fmt.Errorf("failed to create status monitor: %w", err)
	}
	monitorService.Start()
	defer monitorService.Stop()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	select {
	case <-sigCtx.Done():
		Logger.Info("Shutting down")
	case err := <-loopErr:
		Logger.Error("Owner loop exited", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("HTTP API shutdown failed", "error", err)
	}
	monitorService.Stop()
	bus.Close()
	<-hintsDone
	stopDrift()
	stopScreen(shutdownCtx, d, screen)
	stopLoop()
	d.Close()

	if err := backend.EndSession(); err != nil {
		Logger.Error("Failed to end session", "error", err)
	}
	uploadSession(shutdownCtx, cfg.API, backend)

	if err := SlogManager.Flush(shutdownCtx); err != nil {
		Logger.Warn("Log flush failed", "error", err)
	}
	if err := OTelProvider.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("OpenTelemetry shutdown failed", "error", err)
	}
	return nil
}

// stopScreen runs Screen.Stop on the owner loop and waits for it.
func stopScreen(ctx context.Context, d *dispatcher.Dispatcher, screen *mapscreen.Screen) {
	done := make(chan struct{})
	if err := d.Post(func() {
		screen.Stop()
		close(done)
	}); err != nil {
		Logger.Warn("Map screen not stopped", "error", err)
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
		Logger.Warn("Timed out stopping map screen")
	}
}

func routingProvider(cfg config.RoutingConfig) routing.Provider {
	if cfg.Provider == "direct" {
		return routing.NewDirect(cfg.WalkingSpeedMps)
	}
	return routing.NewOSRM(routing.OSRMConfig{
		BaseURL:      cfg.OsrmURL,
		Profile:      cfg.Profile,
		Alternatives: cfg.Alternatives,
		Timeout:      cfg.Timeout,
	})
}

func helpCenterPositions(centers []core.HelpCenter) []core.LatLng {
	out := make([]core.LatLng, 0, len(centers))
	for _, hc := range centers {
		out = append(out, hc.Position())
	}
	return out
}

// uploadSession sends the exported session file to the recordings server
// when the backend produced one.
func uploadSession(ctx context.Context, cfg config.APIConfig, backend storage.Backend) {
	u, ok := backend.(storage.Uploadable)
	if !ok || cfg.ServerURL == "" {
		return
	}
	path := u.GetExportedFilePath()
	if path == "" {
		return
	}
	client := api.New(cfg.ServerURL, cfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Warn("Recordings server unreachable, keeping local file", "path", path, "error", err)
		return
	}
	if err := client.Upload(ctx, path, u.GetExportMetadata()); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			Logger.Warn("Upload timed out, keeping local file", "path", path)
			return
		}
		Logger.Error("Failed to upload session", "path", path, "error", err)
		return
	}
	Logger.Info("Uploaded session", "path", path)
}
