// Command sentinel is the headless log aggregation and alerting
// engine's entrypoint. Argument parsing here is deliberately thin; a
// richer front end (pretty printing, report rendering, structured
// filter flags) lives outside this repo. main wires the typed Config
// into the collector pool and rule engine and gets out of the way.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/headlesssentinel/sentinel/internal/collector"
	"github.com/headlesssentinel/sentinel/internal/config"
	"github.com/headlesssentinel/sentinel/internal/executor"
	"github.com/headlesssentinel/sentinel/internal/metrics"
	"github.com/headlesssentinel/sentinel/internal/model"
	"github.com/headlesssentinel/sentinel/internal/notify"
	"github.com/headlesssentinel/sentinel/internal/rules"
	"github.com/headlesssentinel/sentinel/internal/store"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "collect":
		err = runCollect(log, os.Args[2:])
	case "watch":
		err = runWatch(log, os.Args[2:])
	case "status":
		err = runStatus(log, os.Args[2:])
	case "tail":
		err = runTail(log, os.Args[2:])
	case "init":
		err = runInit(log, os.Args[2:])
	case "generate-config":
		err = runGenerateConfig(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		if err == context.Canceled {
			os.Exit(0)
		}
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sentinel <collect|watch|status|tail|init|generate-config> [flags]")
}

// rootContext cancels on SIGINT/SIGTERM so Ctrl-C unwinds cleanly and
// exits zero.
func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig(path string, log *logrus.Logger) (config.Config, error) {
	cfg, warnings, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	for _, w := range warnings {
		log.WithField("key", w).Warn("unrecognized configuration key")
	}
	return cfg, nil
}

func openStore(cfg config.Config, log *logrus.Logger) (*store.Store, error) {
	path := cfg.Database.Path
	if path == "" {
		path = "sentinel.db"
	}
	return store.Open(path, log.WithField("component", "store"))
}

// buildPool wires a collector.Pool over every configured target, using
// each target's credential chain and PowerShell executor.
func buildPool(cfg config.Config, creds *config.CredentialProvider, log *logrus.Logger) *collector.Pool {
	var collectors []*collector.HostCollector
	for _, t := range cfg.Targets {
		target := t.ToHostTarget()
		hostLog := log.WithField("component", "collector")

		c, err := creds.Credentials(context.Background(), target.CredentialRef)
		if err != nil {
			log.WithField("host", target.IP).WithError(err).Error("skipping host for this run, no credentials")
			continue
		}

		exec := executor.New(target, c, hostLog)
		collectors = append(collectors, collector.NewHostCollector(target.IP, cfg.Collection.LogTypes, exec, cfg.Collection.MaxEvents, hostLog))
	}

	return collector.NewPool(collectors, time.Duration(cfg.Collection.HoursBack)*time.Hour, cfg.Collection.ConcurrentHosts, log.WithField("component", "pool"))
}

func runCollect(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config.yaml")
	continuous := fs.Bool("continuous", false, "run continuously instead of a single cycle")
	interval := fs.Int("interval", 300, "seconds between cycles in --continuous mode")
	metricsAddr := fs.String("metrics-addr", "", "listen address for the Prometheus /metrics endpoint, empty to disable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		return err
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	creds := config.NewCredentialProvider(cfg, log.WithField("component", "credentials"))
	pool := buildPool(cfg, creds, log)

	ctx, cancel := rootContext()
	defer cancel()

	serveMetrics(*metricsAddr, log)

	onCycle := func(result collector.CycleResult) error {
		var all []model.LogEntry
		for _, b := range result.Batches {
			all = append(all, b.Entries...)
		}
		if len(all) == 0 {
			return nil
		}
		_, err := st.InsertBatch(ctx, all)
		return err
	}

	if *continuous {
		afterCycle := func(result collector.CycleResult) error {
			if err := onCycle(result); err != nil {
				return err
			}
			if cfg.Database.RetentionDays > 0 {
				if _, err := st.DeleteOlderThan(ctx, cfg.Database.RetentionDays); err != nil {
					log.WithError(err).Error("retention purge failed")
				}
			}
			return nil
		}
		pool.RunContinuous(ctx, time.Duration(*interval)*time.Second, afterCycle)
		return nil
	}

	result := pool.RunCycle(ctx)
	return onCycle(result)
}

// serveMetrics starts the Prometheus scrape endpoint on addr, or does
// nothing when addr is empty.
func serveMetrics(addr string, log *logrus.Logger) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Error("metrics endpoint failed")
		}
	}()
}

func runWatch(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config.yaml")
	metricsAddr := fs.String("metrics-addr", "", "listen address for the Prometheus /metrics endpoint, empty to disable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		return err
	}
	if !cfg.Alerts.Enabled {
		log.Info("alerts disabled in config, nothing to watch")
		return nil
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	creds := config.NewCredentialProvider(cfg, log.WithField("component", "credentials"))
	dispatch := &notify.Dispatcher{
		Notifier: notify.New(notify.NewRateLimiter(5, time.Minute), log.WithField("component", "notify")),
		Remediator: notify.NewRemediator(func(ctx context.Context, host string) (notify.ScriptRunner, error) {
			target := model.HostTarget{IP: host}
			for _, t := range cfg.Targets {
				if t.IP == host {
					target = t.ToHostTarget()
					break
				}
			}
			c, err := creds.Credentials(ctx, host)
			if err != nil {
				return nil, err
			}
			return executor.New(target, c, log.WithField("component", "remediator")), nil
		}, log.WithField("component", "remediator")),
	}

	var ruleSet []model.Rule
	for _, rc := range cfg.Alerts.Rules {
		r := model.Rule{Name: rc.Name, EventIDs: rc.EventIDs, HostPattern: rc.HostPattern, Threshold: rc.Threshold}
		if rc.Severity != "" {
			sev := severityFromString(rc.Severity)
			r.Severity = &sev
		}
		for _, a := range rc.Actions {
			r.Actions = append(r.Actions, a.ToAction())
		}
		ruleSet = append(ruleSet, r)
	}

	checkInterval := time.Duration(cfg.Alerts.CheckInterval) * time.Second
	watcher := rules.New(ruleSet, st, dispatch, checkInterval, log.WithField("component", "watcher"))

	ctx, cancel := rootContext()
	defer cancel()
	serveMetrics(*metricsAddr, log)
	watcher.Run(ctx)
	return nil
}

func severityFromString(s string) model.Level {
	for lvl := model.LevelUnknown; lvl <= model.LevelVerbose; lvl++ {
		if lvl.String() == s {
			return lvl
		}
	}
	return model.LevelUnknown
}

func runStatus(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		return err
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	rows, err := st.Query(ctx, "SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM logs")
	if err != nil {
		return err
	}
	defer rows.Close()

	var count int64
	var min, max sql.NullString
	if rows.Next() {
		if err := rows.Scan(&count, &min, &max); err != nil {
			return err
		}
	}
	fmt.Printf("rows: %d\noldest: %s\nnewest: %s\n", count, min.String, max.String)
	return rows.Err()
}

func runTail(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config.yaml")
	lines := fs.Int("lines", 20, "number of recent rows to print")
	follow := fs.Bool("follow", false, "keep polling for new rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		return err
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := rootContext()
	defer cancel()

	rows, err := st.Recent(ctx, *lines)
	if err != nil {
		return err
	}
	var lastID int64
	for i := len(rows) - 1; i >= 0; i-- {
		printRow(rows[i])
		lastID = rows[i].ID
	}
	if !*follow {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
		fresh, err := st.Recent(ctx, *lines)
		if err != nil {
			return err
		}
		for i := len(fresh) - 1; i >= 0; i-- {
			if fresh[i].ID > lastID {
				printRow(fresh[i])
				lastID = fresh[i].ID
			}
		}
	}
}

func printRow(r model.Row) {
	fmt.Printf("%d  %s  %-11s  %s  %s/%d  %s\n",
		r.ID, r.Timestamp.UTC().Format(time.RFC3339), r.Level, r.Computer, r.LogName, r.EventID, r.Message)
}

func runInit(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config.yaml")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		return err
	}

	if !*yes {
		fmt.Printf("create schema at %s? [y/N] ", cfg.Database.Path)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("aborted")
			return nil
		}
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	return st.Close()
}

func runGenerateConfig(args []string) error {
	fs := flag.NewFlagSet("generate-config", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := "config.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	return config.WriteSample(path)
}
