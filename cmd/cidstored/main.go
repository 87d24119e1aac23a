package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"xdao.co/cidstore/logging"
	"xdao.co/cidstore/metrics"
	"xdao.co/cidstore/storage"
	"xdao.co/cidstore/storage/casconfig"
	"xdao.co/cidstore/storage/casregistry"
	"xdao.co/cidstore/storage/grpccas"

	_ "xdao.co/cidstore/archive"
	_ "xdao.co/cidstore/storage/ipfs"
	_ "xdao.co/cidstore/storage/localfs"
	_ "xdao.co/cidstore/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil))
}

type options struct {
	listen        string
	backend       string
	config        string
	metricsListen string
	logLevel      string
	logFormat     string
	maxMsgBytes   int
	listBackends  bool
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("cidstored", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.listen, "listen", "127.0.0.1:7777", "gRPC listen address")
	fs.StringVar(&o.backend, "backend", "localfs", "CAS backend name")
	fs.StringVar(&o.config, "config", "", "YAML backend configuration (overrides --backend)")
	fs.StringVar(&o.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address (e.g. :2112)")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log format: text or json")
	fs.IntVar(&o.maxMsgBytes, "max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
	fs.BoolVar(&o.listBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func newLogger(o options, w io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	switch o.logFormat {
	case "text":
		return logging.NewTextLogger(w, level), nil
	case "json":
		return logging.NewJSONLogger(w, level), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", o.logFormat)
	}
}

func openCAS(o options) (storage.CAS, func() error, error) {
	if o.config != "" {
		cfg, err := casconfig.LoadFile(o.config)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(casregistry.UsageDaemon, "")
	}
	return casregistry.Open(o.backend, casregistry.UsageDaemon)
}

// run serves until ctx is done. ready, if non-nil, receives the bound gRPC
// address once the listener is up.
func run(ctx context.Context, args []string, out, errOut io.Writer, ready chan<- net.Addr) int {
	o, err := parseFlags(args, errOut)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(errOut, err)
		return 2
	}
	if o.listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	log, err := newLogger(o, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	cas, closeFn, err := openCAS(o)
	if err != nil {
		log.Error("open backend failed", "backend", o.backend, "error", err)
		return 2
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				log.Warn("close backend failed", "error", err)
			}
		}()
	}

	var collector metrics.Collector = metrics.Noop{}
	var metricsSrv *http.Server
	if o.metricsListen != "" {
		prom := metrics.NewPrometheus("cidstore")
		collector = prom
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		metricsSrv = &http.Server{Addr: o.metricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		log.Info("serving metrics", "addr", o.metricsListen)
	}

	lis, err := net.Listen("tcp", o.listen)
	if err != nil {
		log.Error("listen failed", "addr", o.listen, "error", err)
		return 1
	}

	var serverOpts []grpc.ServerOption
	if o.maxMsgBytes > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(o.maxMsgBytes), grpc.MaxSendMsgSize(o.maxMsgBytes))
	}
	s := grpc.NewServer(serverOpts...)
	grpccas.RegisterCASServer(s, &grpccas.Server{
		CAS:     cas,
		Metrics: collector,
		Logger:  log.WithBackend(o.backend),
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(lis) }()
	log.Info("cidstored listening", "addr", lis.Addr().String(), "backend", o.backend)
	if ready != nil {
		ready <- lis.Addr()
	}

	code := 0
	select {
	case <-ctx.Done():
		log.Info("shutting down")
		s.GracefulStop()
	case err := <-serveErr:
		if err != nil {
			log.Error("serve failed", "error", err)
			code = 1
		}
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return code
}
