// Command baristabot runs the market maker and its trading agents against one
// on-chain CLOB instrument. Configuration comes from a YAML file plus
// environment secrets; SIGHUP reloads the file, SIGINT/SIGTERM shut down
// gracefully.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Great-Trading-eXperience/barista-bot/internal/chain"
	"github.com/Great-Trading-eXperience/barista-bot/internal/config"
	"github.com/Great-Trading-eXperience/barista-bot/internal/dotenv"
	"github.com/Great-Trading-eXperience/barista-bot/internal/jsonl"
	"github.com/Great-Trading-eXperience/barista-bot/internal/report"
	"github.com/Great-Trading-eXperience/barista-bot/internal/txlog"
	"github.com/Great-Trading-eXperience/barista-bot/internal/worker"
)

type args struct {
	configPath string
	outFile    string
	audit      int
}

func parseArgs() args {
	var a args
	flag.StringVar(&a.configPath, "config", "./bot.yaml", "path to the YAML config file")
	flag.StringVar(&a.outFile, "out", "", "JSONL event log path (overrides report.jsonl_path)")
	flag.IntVar(&a.audit, "audit", 0, "print the last N journaled sends and exit")
	flag.Parse()

	if env := strings.TrimSpace(os.Getenv("BOT_CONFIG")); env != "" && a.configPath == "./bot.yaml" {
		a.configPath = env
	}
	return a
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	parsed := parseArgs()

	cfg, err := config.Load(parsed.configPath)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	var journal *txlog.Store
	if cfg.TxLog.Path != "" {
		journal, err = txlog.Open(cfg.TxLog.Path)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		defer journal.Close()
	}

	if parsed.audit > 0 {
		if journal == nil {
			log.Fatalf("[fatal] -audit needs txlog.path in the config")
		}
		if err := printAudit(journal, parsed.audit); err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		return
	}

	outFile := parsed.outFile
	if outFile == "" {
		outFile = cfg.Report.JSONLPath
	}
	var events *jsonl.Writer
	if outFile != "" {
		events = jsonl.New(outFile)
		log.Printf("Event log: %s (JSONL)", outFile)
		defer func() {
			if err := events.Close(); err != nil {
				log.Printf("[warn] event log close: %v", err)
			}
		}()
	}

	startedAt := time.Now()
	market := fmt.Sprintf("%s/%s", cfg.Market.Base, cfg.Market.Quote)
	logBotEvent(events, botLogEvent{
		TsMs:       time.Now().UnixMilli(),
		Event:      "start",
		ConfigPath: parsed.configPath,
		Market:     market,
		Workers:    len(cfg.Accounts),
		Agents:     len(cfg.Agents),
	})
	defer func() {
		logBotEvent(events, botLogEvent{
			TsMs:     time.Now().UnixMilli(),
			Event:    "shutdown",
			Market:   market,
			UptimeMs: time.Since(startedAt).Milliseconds(),
		})
	}()

	log.Printf("Barista bot → %s", market)
	log.Printf("Accounts: %d, agents per account: %d", len(cfg.Accounts), len(cfg.Agents))
	log.Printf("Ladder: depth=%d spread=%dbps step=%dbps qty=%d",
		cfg.Maker.Depth, cfg.Maker.SpreadBps, cfg.Maker.StepBps, cfg.Maker.Quantity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers, clients, err := buildWorkers(ctx, cfg, journal, events)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	subjects := make([]report.Subject, 0, len(workers))
	for i, w := range workers {
		subjects = append(subjects, report.Subject{
			Name:    w.Name,
			Account: clients[i].From(),
			LastMid: w.LastMid,
		})
	}
	reporter := &report.Reporter{
		Client:   clients[0],
		Base:     cfg.Market.BaseAddress(),
		Quote:    cfg.Market.QuoteAddress(),
		Subjects: subjects,
		Events:   events,
		Interval: cfg.Report.Interval.Std(),
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		sig := <-sigCh
		if sig == syscall.SIGHUP {
			reload(parsed.configPath, workers)
			continue
		}
		log.Printf("[info] %s received, shutting down", sig)
		break
	}
	cancel()
	wg.Wait()
	log.Printf("[info] all workers stopped, uptime %s", time.Since(startedAt).Truncate(time.Second))
}

func buildWorkers(ctx context.Context, cfg config.Snapshot, journal *txlog.Store, events *jsonl.Writer) ([]*worker.Worker, []*chain.Client, error) {
	var (
		workers []*worker.Worker
		clients []*chain.Client
	)
	fail := func(err error) ([]*worker.Worker, []*chain.Client, error) {
		for _, c := range clients {
			c.Close()
		}
		return nil, nil, err
	}

	for _, acct := range cfg.Accounts {
		key, err := chain.ParsePrivateKey(acct.PrivateKey)
		if err != nil {
			return fail(fmt.Errorf("account %s: %w", acct.Name, err))
		}
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID, key)
		if err != nil {
			return fail(fmt.Errorf("account %s: %w", acct.Name, err))
		}
		clients = append(clients, client)

		// The journal interface is nil-safe only through a typed nil check.
		var j chain.Journal
		if journal != nil {
			j = journal
		}
		w, err := worker.New(acct.Name, cfg, client, j)
		if err != nil {
			return fail(fmt.Errorf("account %s: %w", acct.Name, err))
		}
		w.SetEvents(events)
		if err := w.Init(ctx); err != nil {
			return fail(err)
		}
		log.Printf("[info] worker %s ready (account=%s)", acct.Name, client.From().Hex())
		workers = append(workers, w)
	}
	return workers, clients, nil
}

// reload re-reads the config file and hands each worker a fresh snapshot.
// A broken file is logged and ignored; the running config stays in effect.
func reload(path string, workers []*worker.Worker) {
	cfg, err := config.Load(path)
	if err != nil {
		log.Printf("[warn] reload ignored: %v", err)
		return
	}
	for _, w := range workers {
		w.Update(cfg)
	}
	log.Printf("[cfg] reloaded %s: depth=%d spread=%dbps step=%dbps deviation=%dbps",
		path, cfg.Maker.Depth, cfg.Maker.SpreadBps, cfg.Maker.StepBps, cfg.Maker.DeviationBps)
}

func printAudit(journal *txlog.Store, n int) error {
	entries, err := journal.Recent(n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Printf("journal is empty")
		return nil
	}
	for _, e := range entries {
		status := "ok"
		if e.Err != "" {
			status = "err: " + e.Err
		}
		log.Printf("%s %-8s account=%s nonce=%d attempts=%d hash=%s %s",
			e.At.Format(time.RFC3339), e.Kind, e.Account, e.Nonce, e.Attempts, e.TxHash, status)
	}
	return nil
}
