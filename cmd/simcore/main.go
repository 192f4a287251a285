// Command simcore runs a headless tower-defense movement session over
// real-world terrain: it anchors a local frame at the configured origin,
// spawns attack waves of path-following agents and records every agent's
// movement to the configured storage backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/terratd/simcore/internal/api"
	"github.com/terratd/simcore/internal/config"
	"github.com/terratd/simcore/internal/dispatcher"
	"github.com/terratd/simcore/internal/geo"
	"github.com/terratd/simcore/internal/influx"
	"github.com/terratd/simcore/internal/logging"
	"github.com/terratd/simcore/internal/monitor"
	intOtel "github.com/terratd/simcore/internal/otel"
	"github.com/terratd/simcore/internal/session"
	"github.com/terratd/simcore/internal/storage"
	"github.com/terratd/simcore/internal/terrain"
	"github.com/terratd/simcore/internal/worker"
	"github.com/terratd/simcore/pkg/core"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "simcore"
)

var (
	SessionStartTime time.Time = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider
)

func main() {
	configDir := flag.String("config", ".", "directory containing simcore.cfg.json")
	runFor := flag.Duration("duration", 0, "stop after this long (0 runs until the waves finish or an interrupt)")
	waves := flag.Int("waves", 1, "number of demo waves to spawn")
	originFlag := flag.String("origin", "", `session origin as "lon,lat" or "lon,lat,elev", overriding the config`)
	flag.Parse()

	// Console-only logging until the log file exists
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil, nil)
	Logger = SlogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := config.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.Mkdir(logsDir, 0755)
	}

	logFilePath := logging.LogFilePath(logsDir, AppName, SessionStartTime)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
	}

	// OTel provider if enabled (after the log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", logFilePath)
		}
	}
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	// Graylog sink if enabled
	var gelfWriter io.Writer
	if config.GetBool("graylog.enabled") {
		gelfWriter, err = logging.NewGelfWriter(config.GetString("graylog.address"))
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
			gelfWriter = nil
		}
	}

	// Re-setup logging with file output and the optional sinks
	SlogManager.Setup(logFile, config.GetString("logLevel"), otelLogProvider, gelfWriter)
	Logger = SlogManager.Logger()
	Logger.Info("Starting up", "version", Version, "buildDate", BuildDate, "log", logFilePath)

	var originOverride *core.GeoPosition
	if *originFlag != "" {
		pos, err := geo.ParsePosition(*originFlag)
		if err != nil {
			Logger.Error("Invalid -origin value", "value", *originFlag, "error", err)
			os.Exit(1)
		}
		originOverride = &pos
	}

	if err := run(*runFor, *waves, originOverride); err != nil {
		Logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Error("Failed to flush logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Error("Failed to shut down OTel provider", "error", err)
		}
	}
}

func run(runFor time.Duration, waves int, originOverride *core.GeoPosition) error {
	simCfg := config.GetSimConfig()
	originCfg := config.GetOriginConfig()
	if originOverride != nil {
		originCfg.Lat = originOverride.Lat
		originCfg.Lon = originOverride.Lon
		if originOverride.HasHeight {
			originCfg.Height = originOverride.Height
		}
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	// Storage backend
	backend, err := storage.NewBackend(config.GetStorageConfig(), SlogManager)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer backend.Close()

	info := core.SessionInfo{
		Name:        simCfg.SessionName,
		WorldName:   simCfg.WorldName,
		Origin:      core.NewGeoPosition3D(originCfg.Lat, originCfg.Lon, originCfg.Height),
		StartTimeMs: SessionStartTime.UnixMilli(),
	}
	if err := backend.StartSession(&info); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	// Simulation state
	frame := geo.NewFrame(originCfg.Lat, originCfg.Lon, originCfg.Height)
	sampler, err := terrain.NewSampler(frame, newProceduralTerrain(originCfg.Height), Logger)
	if err != nil {
		return fmt.Errorf("failed to create terrain sampler: %w", err)
	}
	sess := session.New(info, frame, sampler, Logger)
	spawner := session.NewSpawner(sess, Logger)

	// InfluxDB metrics (optional)
	influxManager := influx.NewManager(zlog, filepath.Join(config.GetString("logsDir"), "influx_backup.lp.gz"))
	if err := influxManager.Connect(); err != nil {
		Logger.Info("InfluxDB metrics disabled", "reason", err)
	} else {
		influxManager.CreateWriters()
		defer influxManager.Close()
	}

	workerManager := worker.NewManager(worker.Dependencies{
		Session:    sess,
		Spawner:    spawner,
		LogManager: SlogManager,
		Influx:     influxManager,
	}, backend)

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	workerManager.RegisterHandlers(eventDispatcher)

	monitorService := monitor.NewService(monitor.Dependencies{
		LogManager:    SlogManager,
		Session:       sess,
		WorkerManager: workerManager,
		Influx:        influxManager,
		StatusDir:     config.GetString("logsDir"),
	})
	if err := monitorService.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}
	defer monitorService.Stop()

	for i := 0; i < waves; i++ {
		if err := spawnDemoWave(eventDispatcher, originCfg, simCfg, i); err != nil {
			Logger.Error("Failed to spawn demo wave", "wave", i, "error", err)
		}
	}

	runFrameLoop(eventDispatcher, workerManager, sess, simCfg.TickMs, runFor)

	if err := backend.EndSession(); err != nil {
		Logger.Error("Failed to end session", "error", err)
	}
	if exportable, ok := backend.(storage.Exportable); ok {
		exportPath := exportable.GetExportedFilePath()
		Logger.Info("Replay exported", "path", exportPath)
		if config.GetBool("api.enabled") && exportPath != "" {
			uploadReplay(exportPath, info)
		}
	}
	Logger.Info("Session complete",
		"ticks", workerManager.CurrentTick(),
		"terrainCacheSize", sampler.CacheSize())
	return nil
}

// uploadReplay pushes the exported replay file to the replay frontend.
func uploadReplay(path string, info core.SessionInfo) {
	client := api.New(config.GetString("api.serverUrl"), config.GetString("api.apiKey"))
	if err := client.Healthcheck(); err != nil {
		Logger.Warn("Replay frontend unreachable, skipping upload", "error", err)
		return
	}
	err := client.Upload(path, api.UploadMetadata{
		SessionName: info.Name,
		WorldName:   info.WorldName,
		DurationSec: time.Since(SessionStartTime).Seconds(),
	})
	if err != nil {
		Logger.Error("Replay upload failed", "error", err)
		return
	}
	Logger.Info("Replay uploaded", "path", path)
}

// runFrameLoop dispatches :TICK: events at the configured rate until the run
// duration elapses, an interrupt arrives, or all agents have finished.
func runFrameLoop(d *dispatcher.Dispatcher, m *worker.Manager, sess *session.Session, tickMs int, runFor time.Duration) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	ticker := time.NewTicker(time.Duration(tickMs) * time.Millisecond)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if runFor > 0 {
		deadline = time.After(runFor)
	}

	// A few ticks of grace before "no agents" means "everything finished"
	// rather than "the wave has not spawned yet".
	const warmupTicks = 5

	dt := strconv.Itoa(tickMs)
	for {
		select {
		case <-interrupt:
			Logger.Info("Interrupted, shutting down")
			return
		case <-deadline:
			Logger.Info("Run duration elapsed")
			return
		case <-ticker.C:
			if _, err := d.Dispatch(dispatcher.Event{
				Command:   ":TICK:",
				Args:      []string{dt},
				Tick:      m.CurrentTick(),
				Timestamp: time.Now(),
			}); err != nil {
				Logger.Error("Tick failed", "error", err)
			}
			if runFor == 0 && m.CurrentTick() > warmupTicks && sess.Count() == 0 {
				Logger.Info("All agents finished")
				return
			}
		}
	}
}
