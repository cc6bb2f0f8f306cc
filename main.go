package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/fusion.report/internal/api"
	"github.com/banshee-data/fusion.report/internal/archive"
	"github.com/banshee-data/fusion.report/internal/config"
	"github.com/banshee-data/fusion.report/internal/network"
	"github.com/banshee-data/fusion.report/internal/telemetry"
	"github.com/banshee-data/fusion.report/internal/timeutil"
	"github.com/banshee-data/fusion.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON config file (optional)")
	listenUDP   = flag.String("listen-udp", "", "UDP bind address for telemetry (overrides config)")
	listenHTTP  = flag.String("listen-http", "", "HTTP listen address for the API (overrides config)")
	archivePath = flag.String("archive", "", "SQLite archive path (overrides config; empty disables)")
)

func main() {
	flag.Parse()
	log.Printf("fusion.report %s", version.String())

	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	udpAddr := cfg.GetListenUDP()
	if *listenUDP != "" {
		udpAddr = *listenUDP
	}
	httpAddr := cfg.GetListenHTTP()
	if *listenHTTP != "" {
		httpAddr = *listenHTTP
	}
	archiveDB := cfg.GetArchivePath()
	if *archivePath != "" {
		archiveDB = *archivePath
	}

	clock := timeutil.RealClock{}
	store := telemetry.NewStore(cfg.StoreConfig(), clock)

	var archiver network.RecordArchiver
	if archiveDB != "" {
		arc, err := archive.Open(archiveDB)
		if err != nil {
			log.Fatalf("failed to open archive: %v", err)
		}
		defer arc.Close()
		log.Printf("archiving telemetry to %s (run %s)", archiveDB, arc.RunID())
		archiver = arc
	}

	listener := network.NewUDPListener(network.ListenerConfig{
		Address:  udpAddr,
		RcvBuf:   cfg.GetRcvBuf(),
		Clock:    clock,
		Archiver: archiver,
	}, store)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ingestion: the listener is the only writer of the store.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			// Only a failed bind gets here; the process cannot function without
			// the telemetry endpoint.
			log.Fatalf("telemetry listener failed: %v", err)
		}
		log.Print("listener routine terminated")
	}()

	// HTTP API over store snapshots.
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := api.NewServer(store, store.Config(), clock).ServeMux()
		mux.Handle("/api/", api.LoggingMiddleware(apiMux))

		server := &http.Server{
			Addr:    httpAddr,
			Handler: mux,
		}

		go func() {
			log.Printf("API server listening on %s", httpAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start API server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
