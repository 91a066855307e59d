// Command runtime-node is the process entrypoint: it wires configuration,
// logging, the node registry, and the HTTP and gRPC transports together
// and serves until a shutdown signal arrives. Grounded on the teacher's
// api/*/main.go bootstrap ordering (build config, build logger, construct
// dependencies, start servers, wait on signals) as shown by the sip-test
// harness's signal-handling shape (examples/sip-test/main.go).
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/driftmetrics"
	"github.com/rapidaai/runtime/internal/latencymetrics"
	"github.com/rapidaai/runtime/internal/nodes"
	"github.com/rapidaai/runtime/internal/registry"
	transporthttp "github.com/rapidaai/runtime/internal/transport/http"
	"github.com/rapidaai/runtime/internal/transport/grpcclient"
	"github.com/rapidaai/runtime/internal/vadgate"
	"github.com/rapidaai/runtime/pkg/commons"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	v, err := config.InitConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := commons.NewApplicationLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("starting runtime-node", "service", cfg.Name, "version", cfg.Version)

	reg := registry.Global()
	registerBuiltinNodes(reg, cfg, logger)

	nowUs := func() uint64 { return uint64(time.Now().UnixMicro()) }
	metrics := latencymetrics.NewRegistry(func() int64 { return time.Now().UnixMicro() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Infow("shutdown signal received")
		cancel()
	}()

	httpServer := buildHTTPServer(cfg, reg, metrics, logger, nowUs)
	grpcServer, grpcListener, err := buildGRPCServer(cfg, reg, logger, nowUs)
	if err != nil {
		logger.Fatalf("grpc listen: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runHTTPServer(gctx, httpServer, logger) })
	g.Go(func() error { return runGRPCServer(gctx, grpcServer, grpcListener, logger) })

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorw("runtime-node exited with error", "error", err)
		os.Exit(1)
	}
	logger.Infow("runtime-node stopped")
}

// registerBuiltinNodes wires every node type this process ships with into
// the global registry: the dependency-free building blocks from the
// nodes package, the speculative VAD gate (backed by the reference
// energy-threshold decider), and the drift-metrics node.
func registerBuiltinNodes(reg *registry.Registry, cfg *config.AppConfig, logger commons.Logger) {
	reg.MustRegister("passthrough", nodes.NewPassthrough, nodes.PassthroughSchema())
	reg.MustRegister("stream_filter", nodes.NewStreamFilter, nodes.StreamFilterSchema())
	reg.MustRegister("failing", nodes.NewFailingNode, nodes.FailingNodeSchema())
	reg.MustRegister("joiner", nodes.NewJoiner, nodes.JoinerSchema())

	vadNowUs := func() uint64 { return uint64(time.Now().UnixMicro()) }
	reg.MustRegister("vad_gate", vadgate.NewFactory(vadgate.NewEnergyDecider(), cfg.VADGate, vadNowUs), vadgate.Schema())

	driftNowUs := func() uint64 { return uint64(time.Now().UnixMicro()) }
	reg.MustRegister("drift_metrics", driftmetrics.NewFactory(cfg.Drift, driftNowUs), driftmetrics.Schema())

	logger.Infow("node registry populated", "node_types", []string{
		"passthrough", "stream_filter", "failing", "joiner", "vad_gate", "drift_metrics",
	})
}

func buildHTTPServer(cfg *config.AppConfig, reg *registry.Registry, metrics *latencymetrics.Registry, logger commons.Logger, nowUs func() uint64) *http.Server {
	srv := transporthttp.NewServer(cfg, reg, metrics, logger.With("transport", "http"), nowUs)
	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: srv.Engine(),
	}
}

func runHTTPServer(ctx context.Context, srv *http.Server, logger commons.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("http transport listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func buildGRPCServer(cfg *config.AppConfig, reg *registry.Registry, logger commons.Logger, nowUs func() uint64) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort))
	if err != nil {
		return nil, nil, err
	}

	s := grpc.NewServer()
	grpcclient.RegisterHealth(s, "")
	pipelineSrv := grpcclient.NewPipelineServer(reg, cfg.Executor, logger.With("transport", "grpc"), nowUs)
	grpcclient.RegisterPipelineServer(s, pipelineSrv)

	return s, lis, nil
}

func runGRPCServer(ctx context.Context, s *grpc.Server, lis net.Listener, logger commons.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("grpc transport listening", "addr", lis.Addr().String())
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
