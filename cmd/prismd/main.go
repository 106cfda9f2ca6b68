// Command prismd is the ingestion daemon: it loads configuration, builds
// one MultiBook per configured pair, starts a reconnecting supervisor.Task
// per (exchange, pair), a supervisor.Monitor per pair, and the inbound
// relay.Listener, then blocks until terminated.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/wdg3/prism/adapter"
	"github.com/wdg3/prism/alert"
	"github.com/wdg3/prism/applog"
	"github.com/wdg3/prism/config"
	"github.com/wdg3/prism/multibook"
	"github.com/wdg3/prism/relay"
	"github.com/wdg3/prism/supervisor"
)

var log = applog.New("main")

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to built-in defaults + PRISM_* env overrides)")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	notifier := alert.NewSlackNotifier(cfg.SlackWebhookURL)
	relayListener := relay.NewListener(cfg.RelayAddr)

	endpoints := endpointsFor(cfg.Exchanges)

	var wg sync.WaitGroup
	for _, pair := range cfg.Pairs {
		multi := buildMultiBook(pair, cfg, notifier)

		for bookIdx, name := range cfg.Exchanges {
			if name == "relay" {
				relayListener.Register(pair, adapter.NewRelay(multi, bookIdx))
				continue
			}
			endpoint, ok := endpoints[name]
			if !ok {
				log.Errorf("no endpoint wired for configured exchange %q, skipping", name)
				continue
			}
			task := supervisor.NewTask(endpoint, pair, multi, bookIdx)
			wg.Add(1)
			go func() {
				defer wg.Done()
				task.Run(ctx)
			}()
		}

		monitor := supervisor.NewMonitor(multi, cfg.MonitorInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := relayListener.Run(ctx); err != nil {
			log.Errorf("relay listener: %v", err)
		}
	}()

	log.Infof("prismd started: pairs=%v exchanges=%v relay=%s", cfg.Pairs, cfg.Exchanges, cfg.RelayAddr)
	wg.Wait()
	log.Infof("prismd shut down")
}

func buildMultiBook(pair string, cfg *config.Config, notifier *alert.SlackNotifier) *multibook.MultiBook {
	multi := multibook.New(pair, cfg.Exchanges)
	multi.SetThresholds(multibook.Thresholds{
		O25: cfg.Thresholds.O25,
		O20: cfg.Thresholds.O20,
		O15: cfg.Thresholds.O15,
		O10: cfg.Thresholds.O10,
		O05: cfg.Thresholds.O05,
	})
	multi.OnArbitrage(func(e multibook.ArbitrageEvent) {
		log.Warnf("arbitrage on %s: idx=%d pct=%.4f%% count=%d", e.Pair, e.SpreadIdx, e.Spread.Percentage*100, e.ArbCount)
		if err := notifier.Notify(context.Background(), e); err != nil {
			log.Errorf("slack notify: %v", err)
		}
	})
	return multi
}

// endpointsFor builds the fixed connection shape for every native exchange
// this binary knows how to dial. "relay" is handled separately since it has
// no outbound connection of its own.
func endpointsFor(names []string) map[string]supervisor.ExchangeEndpoint {
	all := map[string]supervisor.ExchangeEndpoint{
		"coinbase": supervisor.CoinbaseEndpoint(),
		"kraken":   supervisor.KrakenEndpoint(),
		"bitstamp": supervisor.BitstampEndpoint(),
		"gemini":   supervisor.GeminiEndpoint(),
	}
	out := make(map[string]supervisor.ExchangeEndpoint, len(names))
	for _, n := range names {
		if ep, ok := all[n]; ok {
			out[n] = ep
		}
	}
	return out
}

func waitForSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("received shutdown signal")
	cancel()
}
