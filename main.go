package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"fundingwatch/config"
	"fundingwatch/internal/dashboard"
	"fundingwatch/internal/fetcher"
	"fundingwatch/internal/metrics"
	"fundingwatch/internal/presenter"
	"fundingwatch/internal/reconciler"
	"fundingwatch/internal/refresher"
	"fundingwatch/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single refresh cycle, print the table and exit")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
		"symbols": len(cfg.Symbols),
	}).Info("starting fundingwatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	if err := metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch); err != nil {
		log.WithError(err).Warn("CloudWatch metrics disabled")
	}

	binance := fetcher.NewBinance(fetcher.BinanceOptions(cfg), log)
	bybit := fetcher.NewBybit(fetcher.BybitOptions(cfg), log)
	rec := reconciler.New(binance, bybit, cfg.Reconciler.MaxWorkers, log)
	driver := refresher.New(rec, cfg.Symbols, cfg.Refresh.Interval, log)

	if *once {
		last := driver.RunOnce(ctx)
		if err := printTable(os.Stdout, presenter.BuildView(last)); err != nil {
			log.WithError(err).Error("failed to print table")
			os.Exit(1)
		}
		flushMetrics(log)
		return
	}

	server, err := dashboard.NewServer(cfg.Dashboard, driver, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := driver.Run(ctx); err != nil {
			log.WithError(err).Warn("refresh driver exited")
		}
	}()

	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx, cfg.App.Name); err != nil {
				log.WithError(err).Error("dashboard server failed")
				stop()
			}
		}()
	} else {
		log.WithComponent("main").Info("dashboard disabled; refreshing in the background only")
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}
	flushMetrics(log)

	log.Info("fundingwatch stopped")
}

func flushMetrics(log *logger.Log) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metrics.FlushCloudWatch(ctx); err != nil {
		log.WithError(err).Warn("pending CloudWatch metrics were not published")
	}
}

// printTable renders a view as plain text for -once.
func printTable(w io.Writer, view presenter.View) error {
	if !view.HasData {
		_, err := fmt.Fprintln(w, "No data available")
		return err
	}

	fmt.Fprintln(w, view.Title)
	for _, c := range view.Cards {
		if c.Delta != "" {
			fmt.Fprintf(w, "%s: %s (%s)\n", c.Label, c.Value, c.Delta)
		} else {
			fmt.Fprintf(w, "%s: %s\n", c.Label, c.Value)
		}
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SYMBOL\t%s\t%s\tABS DIFF\t\n", view.ExchangeA, view.ExchangeB)
	for _, r := range view.Rows {
		mark := ""
		if r.Diff.Significant {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s%s\t\n", r.Symbol, r.A.Text, r.B.Text, r.Diff.Text, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nLast updated: %s\n", view.LastUpdated)
	return err
}
