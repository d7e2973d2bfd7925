// motionscoped runs the motion detection engine as a daemon: frames in,
// events out over the embedded bus, with an HTTP/WebSocket surface and
// optional event persistence.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/nats-io/nats.go"

	"github.com/motionscope/motionscope/internal/api"
	"github.com/motionscope/motionscope/internal/config"
	"github.com/motionscope/motionscope/internal/core"
	"github.com/motionscope/motionscope/internal/engine"
	"github.com/motionscope/motionscope/internal/eventstore"
	"github.com/motionscope/motionscope/internal/frame"
)

var version = "dev"

type args struct {
	Config    string `arg:"-c,--config" default:"motionscope.yaml" help:"path to configuration file"`
	Synthetic bool   `arg:"--synthetic" help:"feed a synthetic moving-target frame source (demo/soak)"`
	FPS       int    `arg:"--fps" default:"10" help:"synthetic source frame rate"`
}

func (args) Version() string {
	return "motionscoped " + version
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg, err := config.Load(a.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.System.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting motionscope",
		"version", version,
		"algorithm", cfg.Engine.Detection.Algorithm,
		"api_port", cfg.API.Port,
	)

	if err := run(cfg, a, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, a args, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := core.NewEventBus(core.EventBusConfig{Host: cfg.Bus.Host, Port: cfg.Bus.Port}, logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer bus.Stop()

	eng, err := engine.New(cfg.Engine, bus, logger)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// The store is a bus consumer like any other; the engine itself
	// never persists.
	var store *eventstore.Store
	if cfg.Store.Enabled {
		store, err = eventstore.Open(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("event store: %w", err)
		}
		defer store.Close()

		if _, err := bus.Subscribe(engine.SubjectMotionDetected, func(msg *nats.Msg) {
			if err := store.SaveRaw(context.Background(), msg.Data); err != nil {
				logger.Warn("failed to persist event", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("store subscription: %w", err)
		}
	}

	hub := api.NewHub(logger)
	go hub.Run()

	// Relay engine events to websocket clients.
	relay := func(subject string) {
		if _, err := bus.Subscribe(subject, func(msg *nats.Msg) {
			hub.Broadcast(msg.Subject, msg.Data)
		}); err != nil {
			logger.Warn("relay subscription failed", "subject", subject, "error", err)
		}
	}
	relay(engine.SubjectMotionDetected)
	relay(engine.SubjectTrackingUpdate)
	relay(engine.SubjectError)

	var server *api.Server
	if cfg.API.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		server = api.NewServer(addr, eng, store, hub, logger)
		server.Start()
	}

	// Hot reload: detection settings apply without restart; transport
	// changes need one.
	cfg.OnChange(func(c *config.Config) {
		if err := eng.UpdateSettings(c.Engine); err != nil {
			logger.Warn("reloaded settings rejected", "error", err)
		}
	})
	if err := cfg.Watch(logger); err != nil {
		logger.Warn("config watch disabled", "error", err)
	}
	defer cfg.Close()

	eng.Start()

	if a.Synthetic {
		go syntheticSource(ctx, eng, a.FPS, logger)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	cancel()
	eng.Destroy()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return nil
}

// syntheticSource feeds frames containing a bright square orbiting a
// noisy background. Useful for demos and soak testing without a camera.
func syntheticSource(ctx context.Context, eng *engine.Engine, fps int, logger *slog.Logger) {
	const (
		width  = 320
		height = 240
		size   = 24
	)
	if fps <= 0 {
		fps = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	angle := 0.0
	logger.Info("synthetic source running", "fps", fps, "size", fmt.Sprintf("%dx%d", width, height))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f := frame.New(width, height, time.Now().UnixMilli())
		for i := range f.Pix {
			f.Pix[i] = uint8(40 + rng.Intn(8))
		}
		cx := width/2 + int(80*math.Cos(angle))
		cy := height/2 + int(60*math.Sin(angle))
		for y := cy - size/2; y < cy+size/2; y++ {
			for x := cx - size/2; x < cx+size/2; x++ {
				if x >= 0 && y >= 0 && x < width && y < height {
					f.Pix[y*width+x] = 220
				}
			}
		}
		angle += 0.08

		eng.ProcessFrame(f)
	}
}
