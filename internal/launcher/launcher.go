package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config controls how the launched server is probed.
type Config struct {
	HealthURL  string
	RetryDelay time.Duration
	Client     *http.Client
}

// Launcher runs the server as a child process and reports whether it came up.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New constructs a launcher.
func New(cfg Config, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Launcher{cfg: cfg, logger: logger, sleep: sleepCtx}
}

// CheckHealth waits for the server to boot, probes the health URL and retries once.
func (l *Launcher) CheckHealth(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		if err = l.sleep(ctx, l.cfg.RetryDelay); err != nil {
			return err
		}
		if err = l.probe(ctx); err == nil {
			l.logger.Info("server is healthy", zap.String("url", l.cfg.HealthURL), zap.Int("attempt", attempt))
			return nil
		}
		l.logger.Warn("health probe failed", zap.String("url", l.cfg.HealthURL), zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

// Run starts cmd, checks its health in the background and waits for it to exit.
// A failed health check is logged but does not stop the child.
func (l *Launcher) Run(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start server process: %w", err)
	}
	l.logger.Info("server process started", zap.Int("pid", cmd.Process.Pid))

	exited := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(exited)
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("server process: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		probeCtx, cancel := context.WithCancel(gctx)
		defer cancel()
		go func() {
			select {
			case <-exited:
				cancel()
			case <-probeCtx.Done():
			}
		}()
		if err := l.CheckHealth(probeCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("server did not become healthy", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func (l *Launcher) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.HealthURL, nil)
	if err != nil {
		return err
	}
	resp, err := l.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
