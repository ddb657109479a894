package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/opendatawatch/opendatawatch/internal/discovery"
	"github.com/opendatawatch/opendatawatch/internal/fetch"
	"github.com/opendatawatch/opendatawatch/internal/monitor"
	"github.com/opendatawatch/opendatawatch/internal/ratelimit"
	"github.com/opendatawatch/opendatawatch/internal/schedule"
	"github.com/opendatawatch/opendatawatch/internal/store"
)

const (
	defaultDBPath            = "/var/lib/datawatch/datawatch.db"
	defaultMetricsAddr       = "127.0.0.1:2113"
	defaultDiscoveryInterval = 6 * time.Hour
	defaultRequestsPerHour   = 30
)

var (
	dbPath            string
	verbose           bool
	metricsAddr       string
	catalogURL        string
	dataJSONURLs      []string
	archiveURL        string
	discoveryInterval time.Duration
	requestsPerHour   int
	vanishedLookback  time.Duration

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "datawatch",
	Short: "Open-data catalog change monitor",
	Long: `datawatch discovers government open-data catalog entries, tracks each
dataset's observed state over time, classifies changes between observations,
and adapts per-dataset check frequency to measured volatility.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("datawatch %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run continuous discovery and monitoring (service mode)",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := monitor.NewLogger(verbose)
		monitor.BuildInfo.WithLabelValues(version, commit, date).Set(1)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		deps, err := buildDeps(log)
		if err != nil {
			return err
		}
		defer deps.close()

		m, err := monitor.New(&monitor.Config{
			Logger:            log,
			Store:             deps.store,
			Limiter:           deps.limiter,
			Fetcher:           deps.fetcher,
			Pools:             deps.pools,
			Scheduler:         deps.scheduler,
			Discovery:         deps.discovery,
			DiscoveryInterval: discoveryInterval,
			MetricsAddr:       metricsAddr,
		})
		if err != nil {
			return err
		}
		return m.Run(ctx)
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a single discovery session and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := monitor.NewLogger(verbose)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		deps, err := buildDeps(log)
		if err != nil {
			return err
		}
		defer deps.close()

		result, err := deps.discovery.RunDiscoverySession(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("session %s: %d found, %d new, %d sources, %d vanished candidates, %d errors\n",
			result.SessionID, result.TotalFound, result.NewFound,
			result.SourcesChecked, len(result.VanishedCandidates), len(result.Errors))

		if len(result.VanishedCandidates) > 0 {
			archive := discovery.NewArchiveClient(archiveURL, deps.client)
			for _, id := range result.VanishedCandidates {
				if err := deps.discovery.ReconstructVanished(ctx, archive, id, vanishedLookback); err != nil {
					log.Warn("reconstruction failed",
						slog.String("dataset_id", id),
						slog.String("error", err.Error()))
				}
			}
		}
		return nil
	},
}

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List datasets currently due for a check, per tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := monitor.NewLogger(verbose)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		deps, err := buildDeps(log)
		if err != nil {
			return err
		}
		defer deps.close()

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Tier", "Dataset", "Next Check", "Checks", "Failures"})
		for _, tier := range append([]store.Priority{store.PriorityUnclassified}, store.Tiers...) {
			entries, err := deps.store.DueScheduleEntries(ctx, tier, time.Now().UTC(), 100)
			if err != nil {
				return err
			}
			for _, e := range entries {
				table.Append([]string{
					string(e.Priority),
					e.DatasetID,
					e.NextCheck.UTC().Format(time.RFC3339),
					fmt.Sprintf("%d", e.CheckCount),
					fmt.Sprintf("%d", e.FailureCount),
				})
			}
		}
		table.Render()
		return nil
	},
}

// components bundles the service graph built once per command. Everything is
// constructed explicitly and handed down; nothing hides behind package
// globals.
type components struct {
	store     *store.Store
	limiter   *ratelimit.Limiter
	fetcher   *fetch.Fetcher
	pools     *fetch.Pools
	scheduler *schedule.Scheduler
	discovery *discovery.Orchestrator
	client    *discovery.Client
}

func (d *components) close() {
	if d.client != nil {
		d.client.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

func buildDeps(log *slog.Logger) (*components, error) {
	st, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dbPath, err)
	}

	limiter, err := ratelimit.New(&ratelimit.Config{
		Logger:          log,
		RequestsPerHour: requestsPerHour,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	fetcher, err := fetch.NewFetcher(&fetch.FetcherConfig{
		Logger:  log,
		Limiter: limiter,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	pools, err := fetch.NewPools(&fetch.PoolsConfig{Logger: log})
	if err != nil {
		st.Close()
		return nil, err
	}

	scheduler, err := schedule.New(&schedule.Config{
		Logger: log,
		Store:  st,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	client, err := discovery.NewClient(&discovery.ClientConfig{
		Logger:  log,
		Fetcher: fetcher,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	sources := []discovery.Source{
		discovery.NewCatalogSource("catalog", catalogURL, client),
	}
	for i, u := range dataJSONURLs {
		sources = append(sources, discovery.NewDataJSONSource(fmt.Sprintf("datajson-%d", i), u, client))
	}

	orch, err := discovery.New(&discovery.Config{
		Logger:    log,
		Store:     st,
		Scheduler: scheduler,
		Sources:   sources,
	})
	if err != nil {
		client.Close()
		st.Close()
		return nil, err
	}

	return &components{
		store:     st,
		limiter:   limiter,
		fetcher:   fetcher,
		pools:     pools,
		scheduler: scheduler,
		discovery: orch,
		client:    client,
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath, "Path to the SQLite state database")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&catalogURL, "catalog-url", "https://catalog.data.gov", "Base URL of the catalog search API")
	rootCmd.PersistentFlags().StringSliceVar(&dataJSONURLs, "datajson-url", nil, "data.json inventory endpoints (repeatable)")
	rootCmd.PersistentFlags().StringVar(&archiveURL, "archive-url", "https://web.archive.org/cdx/search/cdx", "Archival capture lookup endpoint")
	rootCmd.PersistentFlags().IntVar(&requestsPerHour, "requests-per-hour", defaultRequestsPerHour, "Per-domain hourly request cap")

	discoverCmd.Flags().DurationVar(&vanishedLookback, "vanished-lookback", 90*24*time.Hour, "How far back to search the archive for vanished datasets")

	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", defaultMetricsAddr, "Prometheus metrics listen address")
	runCmd.Flags().DurationVar(&discoveryInterval, "discovery-interval", defaultDiscoveryInterval, "Interval between discovery sessions (e.g., 6h)")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(dueCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
