package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"ecommerce-events/internal/binlog"
	"ecommerce-events/internal/config"
	"ecommerce-events/internal/health"
	natspub "ecommerce-events/internal/nats"
	"ecommerce-events/internal/poller"
	"ecommerce-events/internal/processor"
	"ecommerce-events/internal/source"
)

func main() {
	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.Info("Starting e-commerce event producer...")

	// Source database
	db, err := source.Open(cfg.MySQL)
	if err != nil {
		logger.Fatalf("Failed to connect to source database: %v", err)
	}
	defer db.Close()

	// Preflight: misconfiguration here is the only fatal error class.
	tables := monitoredTables(cfg)
	if len(tables) == 0 {
		logger.Fatal("No pollers enabled, nothing to do")
	}
	checker := source.NewChecker(db, logger)
	if err := checker.Check(context.Background(), cfg.MySQL.Database, tables, cfg.Binlog.Enabled); err != nil {
		logger.Fatalf("Preflight check failed: %v", err)
	}

	// Sink
	publisher, err := natspub.NewPublisher(cfg.NATS, logger)
	if err != nil {
		logger.Fatalf("Failed to create NATS publisher: %v", err)
	}
	defer publisher.Close()

	// Optional event transformation
	transformer, err := processor.NewTransformer(&cfg.Processor, logger)
	if err != nil {
		logger.Fatalf("Failed to create transformer: %v", err)
	}

	// Optional binlog watcher for low-latency wake-ups
	var notifier *binlog.Notifier
	if cfg.Binlog.Enabled {
		notifier, err = binlog.NewNotifier(db, cfg.MySQL, cfg.Binlog, logger)
		if err != nil {
			logger.Fatalf("Failed to start binlog watcher: %v", err)
		}
		defer notifier.Close()
	}

	pollers := buildPollers(cfg, db, publisher, transformer, notifier, logger)

	// Graceful shutdown: pollers observe cancellation between cycles.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	for _, p := range pollers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
	}

	if notifier != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			notifier.Run(ctx)
		}()
	}

	if !cfg.Health.Disabled {
		reporter := health.NewReporter(pollers, publisher, cfg.Health.Topic, cfg.Health.Interval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reporter.Run(ctx)
		}()
	}

	sig := <-sigChan
	logger.Infof("Received signal: %v, shutting down...", sig)
	cancel()
	wg.Wait()

	logger.Info("Event producer stopped")
}

// monitoredTables lists the source tables the enabled pollers read, for
// the preflight schema check.
func monitoredTables(cfg *config.Config) []string {
	var tables []string
	if !cfg.Pollers.Orders.Disabled {
		tables = append(tables, "orders")
	}
	if !cfg.Pollers.Inventory.Disabled {
		tables = append(tables, "inventory", "products")
	}
	if !cfg.Pollers.Prices.Disabled {
		tables = append(tables, "products")
	}
	if !cfg.Pollers.Customers.Disabled {
		tables = append(tables, "customers")
	}
	return dedupe(tables)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// buildPollers wires one polling loop per enabled table. Each loop
// owns its watermark; they share only the publisher.
func buildPollers(cfg *config.Config, db *sql.DB, publisher poller.Publisher, transformer poller.Transformer, notifier *binlog.Notifier, logger *logrus.Logger) []*poller.Poller {
	wake := func(table string) <-chan struct{} {
		if notifier == nil {
			return nil
		}
		return notifier.Watch(cfg.MySQL.Database, table)
	}

	var pollers []*poller.Poller
	add := func(name string, pc config.PollerConfig, src poller.Source, wakeCh <-chan struct{}) {
		pollers = append(pollers, poller.New(poller.Config{
			Name:        name,
			Source:      src,
			Publisher:   publisher,
			Transformer: transformer,
			Interval:    pc.Interval,
			BatchSize:   pc.BatchSize,
			Wake:        wakeCh,
			Logger:      logger,
		}))
	}

	if pc := cfg.Pollers.Orders; !pc.Disabled {
		add("orders", pc, source.NewOrders(db, pc.Topic), wake("orders"))
	}
	if pc := cfg.Pollers.Inventory; !pc.Disabled {
		add("inventory", pc, source.NewInventory(db, pc.Topic), wake("inventory"))
	}
	if pc := cfg.Pollers.Prices; !pc.Disabled {
		add("prices", pc, source.NewPrices(db, pc.Topic), wake("products"))
	}
	if pc := cfg.Pollers.Customers; !pc.Disabled {
		add("customers", pc, source.NewCustomers(db, pc.Topic), wake("customers"))
	}
	return pollers
}
