package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"echoping/internal/address"
	"echoping/internal/config"
	"echoping/internal/metrics"
	"echoping/internal/monitor"
	"echoping/internal/probe"
	"echoping/internal/server"
	"echoping/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", "", "address for the web server (overrides config)")
		echoAddr   = flag.String("echo", "", "only run a UDP echo responder on this address, e.g. :7")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *echoAddr != "" {
		runResponder(ctx, *echoAddr)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}

	addresses, err := storage.NewAddressStore(cfg.AddressFile())
	if err != nil {
		log.Fatalf("initialise address store: %v", err)
	}
	results, err := storage.NewResultStorage(cfg.ResultsFile(), cfg.HistorySize)
	if err != nil {
		log.Fatalf("initialise result storage: %v", err)
	}

	prober := &probe.Prober{Port: cfg.EchoPort, TTL: cfg.TTL, TOS: cfg.TOS}
	sched := monitor.NewScheduler(prober, cfg.Interval(), cfg.Timeout())
	if target, ok := initialTarget(addresses, cfg); ok {
		sched.SetTarget(target)
		log.Printf("Target %s", target)
	} else {
		log.Printf("No target saved yet; waiting for one to be committed")
	}

	hub := server.NewHub(sched, results, addresses, metrics.New())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	srv := server.New(cfg.Listen, hub, results, server.Options{
		HistoryLimit: cfg.HistorySize,
		Metrics:      cfg.Metrics,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("echoping listening on %s (interval %s, echo port %d)", cfg.Listen, cfg.Interval(), cfg.EchoPort)
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	<-hubDone
}

// initialTarget prefers the saved address and falls back to the configured one.
func initialTarget(addresses *storage.AddressStore, cfg config.Config) (address.Address, bool) {
	target, err := addresses.Load()
	if err == nil {
		return target, true
	}
	if !errors.Is(err, storage.ErrNoAddress) {
		log.Printf("load saved address: %v", err)
	}
	return cfg.SeedAddress()
}

func runResponder(ctx context.Context, listen string) {
	r, err := probe.Listen(listen)
	if err != nil {
		log.Fatalf("echo responder: %v", err)
	}
	go func() {
		<-ctx.Done()
		r.Close()
	}()

	log.Printf("echo responder listening on %s", r.Addr())
	if err := r.Serve(); err != nil {
		log.Fatalf("echo responder: %v", err)
	}
}
