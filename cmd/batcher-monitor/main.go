// Command batcher-monitor runs the chain follower, the order/analytics
// parser, and the read-only HTTP query surface as one process: a producer
// goroutine streams blocks from the chain-sync endpoint into a bounded
// queue, a consumer goroutine drains the queue through the parser, and a
// third goroutine serves /batchers, /stats, /transactions and /metrics.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cardano-dex/batcher-monitor/api"
	"github.com/cardano-dex/batcher-monitor/blockfrost"
	"github.com/cardano-dex/batcher-monitor/chainsync"
	"github.com/cardano-dex/batcher-monitor/config"
	"github.com/cardano-dex/batcher-monitor/metrics"
	"github.com/cardano-dex/batcher-monitor/parser"
	"github.com/cardano-dex/batcher-monitor/priceoracle"
	"github.com/cardano-dex/batcher-monitor/store"
)

func main() {
	godotenv.Load()

	singlethreaded := flag.Bool("singlethreaded", false, "accepted for compatibility; has no effect (the chain follower and parser always run on separate goroutines)")
	flag.Parse()

	cfg := config.FromEnv()
	cfg.Singlethreaded = *singlethreaded
	if cfg.Singlethreaded {
		log.Println("[main] --singlethreaded is experimental and has no effect; running the chain follower and parser on separate goroutines")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received signal %v, shutting down...", sig)
		cancel()
	}()

	s, err := store.Open(cfg.DatabaseURI)
	if err != nil {
		log.Fatalf("[main] open store: %v", err)
	}
	defer s.Close()

	if err := chainsync.StartupRollback(ctx, s); err != nil {
		log.Fatalf("[main] startup rollback: %v", err)
	}

	start := chainsync.Point{Slot: config.DefaultStartSlot, Hash: config.DefaultStartHash}
	if slot, hash, ok, err := s.FindMaxSlotBlock(); err != nil {
		log.Fatalf("[main] find max slot block: %v", err)
	} else if ok {
		start = chainsync.Point{Slot: slot, Hash: hash}
	}

	prices := priceoracle.NewCache(priceoracle.New(cfg.PriceOracleURL), parser.PriceRefreshEvery)
	fallback := blockfrost.New("https://cardano-mainnet.blockfrost.io/api/v0", cfg.BlockfrostProjectID)

	p, err := parser.New(s, prices, fallback, cfg)
	if err != nil {
		log.Fatalf("[main] construct parser: %v", err)
	}

	engine, err := chainsync.NewRollbackEngine(s)
	if err != nil {
		log.Fatalf("[main] construct rollback engine: %v", err)
	}

	queue := chainsync.NewBlockQueue()
	client := chainsync.New(cfg.OgmiosURL, queue)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[chainsync] connecting to %s from slot=%d hash=%s", cfg.OgmiosURL, start.Slot, start.Hash)
		if err := chainsync.RunSupervised(ctx, client, engine, start, p.OnRollback); err != nil && ctx.Err() == nil {
			log.Printf("[chainsync] supervisor exited: %v", err)
			cancel()
		}
		queue.Close()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			block, ok := queue.Pop()
			if !ok {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if err := p.ProcessBlock(ctx, block); err != nil {
				log.Printf("[parser] process block slot=%d: %v", block.Slot, err)
				cancel()
				return
			}
		}
	}()

	metrics.StartServer(cfg.MetricsAddr)

	mux := http.NewServeMux()
	api.New(s).RegisterRoutes(mux)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[http] listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[http] error: %v", err)
		}
	}()

	<-ctx.Done()
	httpServer.Close()
	wg.Wait()
	log.Println("[main] shutdown complete")
}
