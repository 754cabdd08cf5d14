package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/broker"
	"main/internal/chaos"
	"main/internal/fills"
	"main/internal/ingest"
	"main/internal/journal"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/om"
	"main/internal/ops"
	"main/internal/portfolio"
	"main/internal/risk"
	"main/internal/router"
	"main/internal/schema"
	"main/pkg/conn"
)

func main() {
	signalsPath := flag.String("signals", "", "JSONL file of signals to process, one per line")
	follow := flag.Bool("follow", false, "Keep running after processing the signals file")
	flag.Parse()

	cfg, err := ops.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	limits, err := ops.LoadLimits(cfg.App.LimitsFile)
	if err != nil {
		log.Fatalf("limits load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := obs.Serve(cfg.App.MetricsAddr)
	defer func() { _ = metricsSrv.Close() }()

	engine, cleanup, err := build(ctx, cfg, limits)
	if err != nil {
		log.Fatalf("engine build failed: %v", err)
	}
	defer cleanup()

	if *signalsPath != "" {
		if err := processFile(ctx, engine, *signalsPath); err != nil {
			log.Fatalf("signal file processing failed: %v", err)
		}
	}

	if !*follow {
		// Let the fill pump drain before shutdown.
		time.Sleep(200 * time.Millisecond)
		return
	}

	logs.Infof("%s running, metrics on %s", cfg.App.Name, cfg.App.MetricsAddr)
	<-ctx.Done()
}

// build wires the pipeline per configuration. Redis, Postgres and Kafka
// are optional; absent backends degrade to in-memory equivalents.
func build(ctx context.Context, cfg ops.Config, limits risk.Limits) (*ingest.Usecase, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	sinks := []audit.Sink{audit.NewLogSink(1024)}
	if cfg.App.JournalDir != "" {
		jw, err := journal.NewWriter(journal.Config{Dir: cfg.App.JournalDir})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		jw.Start(ctx)
		cleanups = append(cleanups, func() { _ = jw.Close() })
		sinks = append(sinks, jw)
	}
	if cfg.PG.Host != "" {
		pg, err := conn.New(conn.Option{
			Host:     cfg.PG.Host,
			Port:     cfg.PG.Port,
			User:     cfg.PG.User,
			Password: cfg.PG.Password,
			Database: cfg.PG.Database,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = pg.Close() })

		pgSink, err := audit.NewPGSink(pg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sinks = append(sinks, pgSink)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := audit.NewKafkaSink(audit.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		cleanups = append(cleanups, func() { _ = kafkaSink.Close() })
		sinks = append(sinks, kafkaSink)
	}
	emitter := audit.NewEmitter(audit.NewMultiSink(sinks...))

	window := time.Duration(cfg.App.LedgerWindowMinutes) * time.Minute

	var (
		led      ledger.Ledger
		provider risk.ContextProvider
		recorder ingest.SubmissionRecorder
	)
	if cfg.Redis.Addr != "" {
		client, err := conn.NewRedis(ctx, conn.RedisOption{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = client.Close() })

		led = ledger.NewRedis(client, window)
		redisPortfolio := portfolio.NewRedis(client)
		provider = redisPortfolio
		recorder = redisPortfolio
	} else {
		led = ledger.NewMemory(window)
		static := portfolio.NewStatic()
		provider = static
		recorder = static
	}

	gate := risk.NewGate(limits, provider)

	book := om.NewBook()
	spreads := om.NewCoordinator(nil)
	processor := fills.NewProcessor(book, spreads, emitter)

	if cfg.App.ReconcileSeconds > 0 {
		settle := time.Duration(cfg.App.ReconcileSeconds) * time.Second
		go func() {
			ticker := time.NewTicker(settle)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if frozen := processor.ReconcileSpreads(ctx, settle); frozen > 0 {
						logs.Infof("reconciliation froze %d diverged spreads", frozen)
					}
				}
			}
		}()
	}

	var adapter broker.Adapter
	switch strings.ToUpper(cfg.Broker.Name) {
	case "IBKR":
		ib := broker.NewIBKRStub(broker.IBKRConfig{Host: cfg.Broker.Host, Port: cfg.Broker.Port})
		ib.Connect()
		adapter = ib
	default:
		paper := broker.NewPaper(broker.PaperConfig{
			SlippageBps: cfg.Broker.SlippageBps,
			Atomic:      cfg.Broker.Atomic,
		})
		fillStream := paper.Fills()
		if cfg.Chaos.Enabled() {
			engine, err := chaos.NewEngine(chaos.Config{
				Seed:          cfg.Chaos.Seed,
				DropRate:      cfg.Chaos.DropRate,
				DuplicateRate: cfg.Chaos.DuplicateRate,
				ReorderWindow: cfg.Chaos.ReorderWindow,
			})
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			logs.Infof("chaos faults enabled: drop=%.2f dup=%.2f reorder=%d",
				cfg.Chaos.DropRate, cfg.Chaos.DuplicateRate, cfg.Chaos.ReorderWindow)
			faulty := make(chan schema.Fill, 256)
			go engine.Pipe(fillStream, faulty)
			fillStream = faulty
		}
		go processor.Pump(ctx, fillStream)
		adapter = paper
	}

	rt, err := router.New(book, spreads, emitter, router.MarkFunc(broker.MarkPrice), adapter)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return ingest.NewUsecase(gate, rt, led, emitter, recorder), cleanup, nil
}

func processFile(ctx context.Context, engine *ingest.Usecase, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		payload := strings.TrimSpace(scanner.Text())
		if payload == "" || strings.HasPrefix(payload, "#") {
			continue
		}
		result, err := engine.ProcessRaw(ctx, []byte(payload))
		if err != nil {
			logs.Errorf("line %d: %+v", line, err)
		}
		logs.Infof("line %d: key=%s status=%s order=%s spread=%s reasons=%v",
			line, result.SignalKey, result.Status, result.OrderID, result.SpreadID, result.Reasons)
	}
	return scanner.Err()
}
