package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/spargo"
	"github.com/hupe1980/spargo/codec"
	"github.com/hupe1980/spargo/config"
	"github.com/hupe1980/spargo/metric"
)

type solveFlags struct {
	configPath  string
	n           int64
	pieces      int
	iterations  int
	format      string
	entry       string
	noPrint     bool
	checkpoint  string
	every       int
	resume      bool
	metricsAddr string
	output      string
}

func newSolveCmd() *cobra.Command {
	var f solveFlags
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve the Laplacian model problem with conjugate gradients",
		Example: `  spargo solve -n 100 --pieces 4 --iterations 120 --format csr
  spargo solve --config spargo.yaml --checkpoint-dir s3://bucket/runs/ --resume`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSolve(ctx, cmd.OutOrStdout(), cfg, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.Int64VarP(&f.n, "n", "n", 0, "number of unknowns")
	fs.IntVar(&f.pieces, "pieces", 0, "number of partition pieces")
	fs.IntVar(&f.iterations, "iterations", 0, "number of CG iterations")
	fs.StringVar(&f.format, "format", "", "matrix format: coo or csr")
	fs.StringVar(&f.entry, "entry", "", "entry type: float64 or float32")
	fs.BoolVar(&f.noPrint, "no-print", false, "do not print the solution")
	fs.StringVar(&f.checkpoint, "checkpoint-dir", "", "checkpoint target: directory, s3://bucket/prefix or minio://bucket/prefix")
	fs.IntVar(&f.every, "checkpoint-every", 0, "iterations between checkpoints")
	fs.BoolVar(&f.resume, "resume", false, "resume from the newest checkpoint")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVarP(&f.output, "output", "o", "text", "output format: text or json")
	return cmd
}

// resolveConfig layers explicitly set flags over the config file.
func resolveConfig(cmd *cobra.Command, f solveFlags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, err
		}
	}
	changed := cmd.Flags().Changed
	if changed("n") {
		cfg.Solver.N = f.n
	}
	if changed("pieces") {
		cfg.Solver.Pieces = f.pieces
	}
	if changed("iterations") {
		cfg.Solver.Iterations = f.iterations
	}
	if changed("format") {
		cfg.Solver.Format = f.format
	}
	if changed("entry") {
		cfg.Solver.Entry = f.entry
	}
	if changed("no-print") {
		cfg.Solver.Print = !f.noPrint
	}
	if changed("checkpoint-dir") {
		cfg.Checkpoint.Target = f.checkpoint
	}
	if changed("checkpoint-every") {
		cfg.Checkpoint.Every = f.every
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if f.output != "text" && f.output != "json" {
		return cfg, fmt.Errorf("%w: output must be text or json, got %q", config.ErrInvalidConfig, f.output)
	}
	return cfg, cfg.Validate()
}

func runSolve(ctx context.Context, out io.Writer, cfg config.Config, f solveFlags) error {
	var opts []spargo.Option
	if f.resume {
		opts = append(opts, spargo.WithResume())
	}

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		obs, err := metric.NewPrometheus(cfg.Metrics.Namespace, reg)
		if err != nil {
			return err
		}
		opts = append(opts, spargo.WithMetricsCollector(obs))
		shutdown, err := serveMetrics(cfg.Metrics.Addr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	s, err := spargo.Open(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	res, runErr := s.Run(ctx)
	closeErr := s.Close()
	if res != nil {
		if err := writeReport(out, cfg, f.output, res); err != nil {
			return err
		}
	}
	return errors.Join(runErr, closeErr)
}

func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// solveReport is the JSON output. Non-finite residuals encode as null.
type solveReport struct {
	N          int64      `json:"n"`
	Pieces     int        `json:"pieces"`
	Format     string     `json:"format"`
	Entry      string     `json:"entry"`
	Iterations int        `json:"iterations"`
	Residuals  []*float64 `json:"residual_norm_squared"`
	Solution   []float64  `json:"solution,omitempty"`
	DurationMS float64    `json:"duration_ms"`
}

func writeReport(out io.Writer, cfg config.Config, format string, res *spargo.Result) error {
	if format == "json" {
		r := solveReport{
			N:          cfg.Solver.N,
			Pieces:     cfg.Solver.Pieces,
			Format:     cfg.Solver.Format,
			Entry:      cfg.Solver.Entry,
			Iterations: res.Iterations,
			DurationMS: float64(res.Duration.Microseconds()) / 1e3,
		}
		for _, v := range res.Residuals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				r.Residuals = append(r.Residuals, nil)
				continue
			}
			r.Residuals = append(r.Residuals, &v)
		}
		if cfg.Solver.Print {
			r.Solution = res.Solution
		}
		data, err := codec.Default.Marshal(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", data)
		return err
	}

	for i, v := range res.Residuals {
		fmt.Fprintf(out, "residual_norm_squared[%d] = %.6e\n", i, v)
	}
	if cfg.Solver.Print {
		for i, v := range res.Solution {
			fmt.Fprintf(out, "x[%d] = %.12g\n", i, v)
		}
	}
	_, err := fmt.Fprintf(out, "iterations: %d  time: %s\n", res.Iterations, res.Duration.Round(time.Microsecond))
	return err
}
