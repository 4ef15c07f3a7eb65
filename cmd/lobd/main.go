// Command lobd runs the matching venue as a daemon. Commands are read as a
// text script from a file or stdin; events go to the structured log, the
// metrics endpoint and in-process market data subscribers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"lob-engine/internal/container"
	"lob-engine/sim"
)

func main() {
	cfgPath := flag.String("config", "configs/lobd.yaml", "path to the YAML config")
	script := flag.String("script", "-", "command script to run; - reads stdin, empty disables")
	exitAfterScript := flag.Bool("exitAfterScript", false, "stop once the script is exhausted")
	healthInterval := flag.Duration("healthInterval", 10*time.Second, "interval between health checks")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("build: %v", err)
	}
	lg := c.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		lg.LogError(err, map[string]interface{}{"action": "start"})
		os.Exit(1)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Warn("sd_notify ready failed", zap.Error(err))
	}

	if *script != "" {
		in, closeIn, err := openScript(*script)
		if err != nil {
			lg.LogError(err, map[string]interface{}{"action": "open_script"})
		} else {
			go func() {
				defer closeIn()
				runner := sim.NewRunner(c.Venue(), os.Stdout)
				if err := runner.Run(ctx, in); err != nil {
					lg.LogError(err, map[string]interface{}{"action": "script", "source": *script})
				}
				lg.Info("script finished", zap.String("source", *script))
				if *exitAfterScript {
					stop()
				}
			}()
		}
	}

	watchHealth(ctx, c, *healthInterval)

	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		lg.Warn("sd_notify stopping failed", zap.Error(err))
	}
	if err := c.Stop(); err != nil {
		log.Printf("stop: %v", err)
		os.Exit(1)
	}
}

// watchHealth checks the container until ctx ends and pets the systemd
// watchdog while every component is healthy.
func watchHealth(ctx context.Context, c *container.Container, interval time.Duration) {
	if wd, err := daemon.SdWatchdogEnabled(false); err == nil && wd > 0 && wd/2 < interval {
		interval = wd / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				c.Logger().LogError(err, map[string]interface{}{"action": "health_check"})
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

func openScript(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open script: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
