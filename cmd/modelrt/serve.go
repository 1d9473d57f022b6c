package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"modelrt/internal/asset"
	"modelrt/internal/httpapi"
	"modelrt/internal/manager"
)

type serveFlags struct {
	addr        string
	model       string
	maxSessions int
	threshold   string
	corsOrigins string
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the runtime over HTTP and run the memory monitor",
		Long: `Serve loads the configured model (if any), exposes the HTTP API and runs the
memory-pressure monitor until interrupted.

Examples:
  modelrt serve --model ~/models
  modelrt serve -c modelrt.yaml --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}
	defaultAddr := ":8080"
	if v := os.Getenv("MODELRT_ADDR"); v != "" {
		defaultAddr = v
	}
	cmd.Flags().StringVar(&f.addr, "addr", defaultAddr, "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model file, or a directory whose first *.gguf is loaded")
	cmd.Flags().IntVar(&f.maxSessions, "max-sessions", 0, "Maximum concurrent sessions (0 = config or default)")
	cmd.Flags().StringVar(&f.threshold, "memory-threshold", "", "Memory pressure threshold, e.g. 6GiB (empty = config)")
	cmd.Flags().StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins; enables CORS")
	return cmd
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	ctx := cmd.Context()
	c := cfg
	if cmd.Flags().Changed("addr") || c.Addr == "" {
		c.Addr = f.addr
	}
	if f.model != "" {
		c.ModelPath = f.model
	}
	if f.maxSessions > 0 {
		c.MaxConcurrentSessions = f.maxSessions
	}
	if f.threshold != "" {
		c.MemoryPressureThreshold = f.threshold
	}
	if origins := splitCSV(f.corsOrigins); len(origins) > 0 {
		c.CORSEnabled = true
		c.CORSOrigins = origins
	}
	if err := c.Validate(); err != nil {
		return err
	}

	mc, err := managerConfig(c)
	if err != nil {
		return err
	}
	m := manager.NewWithConfig(mc)

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(c.MaxBodyBytes)
	httpapi.SetLoadTimeout(mc.LoadTimeout)
	httpapi.SetCORSOptions(c.CORSEnabled, c.CORSOrigins, c.CORSMethods, c.CORSHeaders)
	if err := prometheus.Register(httpapi.NewRuntimeCollector(m.Health)); err != nil {
		return fmt.Errorf("register runtime metrics: %w", err)
	}

	if c.ModelPath != "" {
		if err := loadInitial(ctx, m, c.ModelPath); err != nil {
			// Keep serving: /runtime/load can retry and /readyz reports not ready.
			log.Error().Err(err).Str("model", c.ModelPath).Msg("initial load failed")
		}
	}

	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           httpapi.NewMux(httpapi.NewService(m)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", c.Addr).Int("max_sessions", mc.MaxConcurrentSessions).Msg("modelrt listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return m.Monitor().Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return errors.Join(srv.Shutdown(sctx), m.Close(sctx))
	})
	return g.Wait()
}

func loadInitial(ctx context.Context, m *manager.Manager, path string) error {
	p, err := asset.Locate(path)
	if err != nil {
		return err
	}
	a, err := m.ResolveAsset(p)
	if err != nil {
		return err
	}
	log.Info().Str("model", a.Name).Str("size", a.HumanSize()).Str("digest", a.Digest.String()).Msg("loading model")
	return m.LoadRuntime(ctx, a)
}
