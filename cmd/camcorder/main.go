package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bevandicjuraj/CamCorder/internal/capture"
	"github.com/bevandicjuraj/CamCorder/internal/config"
	"github.com/bevandicjuraj/CamCorder/internal/events"
	"github.com/bevandicjuraj/CamCorder/internal/monitor"
	"github.com/bevandicjuraj/CamCorder/internal/monitoring"
	"github.com/bevandicjuraj/CamCorder/internal/pipeline"
	"github.com/bevandicjuraj/CamCorder/internal/serialout"
	"github.com/bevandicjuraj/CamCorder/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to a JSON config file (default: config/camcorder.defaults.json)")
	dbPath     = flag.String("db", "camcorder.db", "SQLite event log path; empty disables the log")
	listen     = flag.String("listen", ":8080", "Monitor listen address; empty disables the monitor")
	serialPort = flag.String("serial", "", "Serial port for event lines, e.g. /dev/ttyUSB0; empty disables")
	serialBaud = flag.Int("serial-baud", 115200, "Serial port baud rate")
	poll       = flag.Duration("poll", 0, "Tracker poll interval; overrides the config when set")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
	showVer    = flag.Bool("version", false, "Print the version and exit")
)

func loadConfig() *config.CamCorderConfig {
	if *configPath == "" {
		return config.MustLoadDefaultConfig()
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String())
		return
	}
	monitoring.SetVerbose(*verbose)
	log.Printf("camcorder %s", version.String())

	cfg := loadConfig()
	if *poll > 0 {
		s := poll.String()
		cfg.PollInterval = &s
	}
	log.Printf("loaded %d cameras at %dx%d", len(cfg.Cameras), cfg.GetFrameWidth(), cfg.GetFrameHeight())

	runner, err := pipeline.FromConfig(cfg, capture.OpenVideoSource, pipeline.VisionDetectors)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer runner.Close()

	var store *events.Store
	if *dbPath != "" {
		store, err = events.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open event log: %v", err)
		}
		defer store.Close()
		log.Printf("recording events to %s (session %s)", *dbPath, store.Session())
		runner.AddSink(store)
	}

	if *serialPort != "" {
		n, err := serialout.Open(*serialPort, serialout.PortOptions{BaudRate: *serialBaud})
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
		defer n.Close()
		log.Printf("notifying %s at %d baud", *serialPort, *serialBaud)
		runner.AddSink(n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if *listen != "" {
		wcfg := monitor.WebServerConfig{Address: *listen, Status: runner}
		if store != nil {
			wcfg.Events = store
			wcfg.Admin = store.AttachAdminRoutes
		}
		ws, err := monitor.NewWebServer(wcfg)
		if err != nil {
			log.Fatalf("failed to create monitor: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("monitor: %v", err)
			}
		}()
	}

	start := time.Now()
	if err := runner.Run(ctx); err != nil {
		log.Printf("pipeline: %v", err)
		stop()
	}
	wg.Wait()

	st := runner.Status()
	for _, g := range st.Grabbers {
		log.Printf("camera %d: %d frames, %d dropped, %.1f fps", g.Camera, g.Frames, g.Dropped, g.AvgFPS)
	}
	log.Printf("stopped after %s: %d events, %d frames written", time.Since(start).Round(time.Second), st.Events, st.FramesWritten)
}
