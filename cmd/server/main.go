package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/line-relay/internal/cli"
	"github.com/omochice/line-relay/internal/metrics"
	"github.com/omochice/line-relay/internal/server"
	"github.com/omochice/line-relay/internal/transport/ws"
	"github.com/omochice/line-relay/pkg/protocol"
)

func main() {
	// Parse command-line flags
	port := flag.Uint("port", 9000, "TCP port to listen on")
	wsAddr := flag.String("ws", "", "WebSocket gateway address (e.g., :8081), empty to disable")
	metricsAddr := flag.String("metrics", "", "Prometheus metrics address (e.g., :9090), empty to disable")
	tick := flag.Duration("tick", 100*time.Millisecond, "Longest wait per reactor update")
	logLevel := flag.String("log-level", "info", "Log level: trace, debug, info, warn, error or disabled")
	flag.Parse()

	if *port > math.MaxUint16 {
		log.Fatalf("Invalid port %d", *port)
	}

	factory, err := cli.LoggerFactory(*logLevel)
	if err != nil {
		log.Fatalf("Invalid -log-level: %v", err)
	}
	logger := factory.NewLogger("main")

	var relayMetrics *metrics.Relay
	reg := prometheus.NewRegistry()
	if *metricsAddr != "" {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		relayMetrics = metrics.NewRelay(reg)
	}

	srv := server.New(server.Config{
		LoggerFactory: factory,
		Metrics:       relayMetrics,
	})
	if err := srv.Listen(uint16(*port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer srv.Close()
		return srv.Run(ctx, *tick, func(msg protocol.Message) {
			logger.Infof("Message: %s", msg)
		})
	})

	if *wsAddr != "" {
		relayAddr := "127.0.0.1:" + strconv.Itoa(int(srv.Port()))
		gw := ws.New(relayAddr, ws.Config{LoggerFactory: factory})
		g.Go(func() error {
			return gw.Start(*wsAddr)
		})
		g.Go(func() error {
			<-ctx.Done()
			gw.Stop()
			return nil
		})
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Infof("Serving metrics on %s", *metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return metricsSrv.Shutdown(context.Background())
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}
