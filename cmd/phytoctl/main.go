// Command phytoctl is the offline companion of the search service. It
// builds LSA bundles, evaluates retrieval quality against a labelled
// dataset and runs one-off queries.
//
// Usage:
//
//	phytoctl --config configs/development.yaml build-lsa --rank 100
//	phytoctl evaluate --dataset data/test.json --mode lsa --cutoff 10
//	phytoctl query --mode vsm "Rosa damascena"
//	phytoctl keys create --ttl 720h ops
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/evaluation"
	evalstore "github.com/Adithya-Monish-Kumar-K/phytosearch/internal/evaluation/store"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/lsa"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/tracing"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "phytoctl: %v\n", err)
		os.Exit(1)
	}
}

func modeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "mode",
		Aliases: []string{"m"},
		Usage:   "Ranking mode (vsm, lsa)",
		Value:   "vsm",
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "phytoctl",
		Usage: "Build, evaluate and query the phytosearch engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				EnvVars: []string{"PS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "Log query spans",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "build-lsa",
				Usage:  "Decompose the inverted index and write an LSA bundle",
				Action: buildLSACommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "rank",
						Usage: "Number of concepts to keep (defaults to lsa.rank)",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Bundle directory (defaults to lsa.bundleDir)",
					},
					&cli.BoolFlag{
						Name:  "notify",
						Usage: "Announce the bundle on Kafka so serving instances reload it",
						Value: true,
					},
				},
			},
			{
				Name:   "evaluate",
				Usage:  "Score retrieval against a labelled dataset",
				Action: evaluateCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dataset",
						Aliases: []string{"d"},
						Usage:   "JSON file of {query, relevant_documents} cases (defaults to evaluation.datasetPath)",
					},
					modeFlag(),
					&cli.IntFlag{
						Name:    "cutoff",
						Aliases: []string{"k"},
						Usage:   "Documents kept per query (defaults to evaluation.cutoffK)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent queries (defaults to evaluation.workers)",
					},
					&cli.BoolFlag{
						Name:  "persist",
						Usage: "Save the report to PostgreSQL",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full report as JSON",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Rank documents for one query",
				ArgsUsage: "<query text>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					modeFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum results (defaults to search.cutoffK)",
					},
				},
			},
			{
				Name:  "keys",
				Usage: "Manage the API keys that unlock admin endpoints",
				Subcommands: []*cli.Command{
					{
						Name:      "create",
						Usage:     "Create a key and print it once",
						ArgsUsage: "<name>",
						Action:    keysCreateCommand,
						Flags: []cli.Flag{
							&cli.DurationFlag{
								Name:  "ttl",
								Usage: "Key lifetime; zero never expires",
							},
						},
					},
					{
						Name:   "list",
						Usage:  "List active keys",
						Action: keysListCommand,
					},
					{
						Name:      "revoke",
						Usage:     "Revoke a key by name",
						ArgsUsage: "<name>",
						Action:    keysRevokeCommand,
					},
				},
			},
		},
	}
}

// setup loads .env and the config, and sends logs to stderr so stdout only
// carries command output.
func setup(c *cli.Context) error {
	_ = godotenv.Load()
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	logger.SetupWriter(c.App.ErrWriter, c.String("log-level"), "text")
	tracing.SetEnabled(c.Bool("trace") || cfg.Tracing.Enabled)
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata["config"] = cfg
	return nil
}

func appConfig(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func buildLSACommand(c *cli.Context) error {
	cfg := appConfig(c)
	if r := c.Int("rank"); r > 0 {
		cfg.LSA.Rank = r
	}
	if dir := c.String("out"); dir != "" {
		cfg.LSA.BundleDir = dir
	}

	eng, err := engine.New(c.Context, cfg)
	if err != nil {
		return err
	}
	model, err := eng.BuildModel()
	if err != nil {
		return fmt.Errorf("building lsa model: %w", err)
	}
	path, err := lsa.WriteBundle(cfg.LSA.BundleDir, model)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s (k=%d, %d terms, %d documents)\n",
		path, model.K(), len(model.Terms), len(model.Documents))

	if !c.Bool("notify") || !cfg.Kafka.Enabled {
		return nil
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ArtifactsPublished)
	defer producer.Close()
	notifier := lsa.NewNotifier(producer)
	err = resilience.Retry(c.Context, "announce-lsa-bundle", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
	}, func(ctx context.Context) error {
		return notifier.Announce(ctx, path, model)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "announced on %s\n", cfg.Kafka.Topics.ArtifactsPublished)
	return nil
}

func evaluateCommand(c *cli.Context) error {
	cfg := appConfig(c)
	mode := c.String("mode")
	if err := checkMode(mode); err != nil {
		return err
	}
	dataset := c.String("dataset")
	if dataset == "" {
		dataset = cfg.Evaluation.DatasetPath
	}
	if dataset == "" {
		return fmt.Errorf("no dataset: pass --dataset or set evaluation.datasetPath")
	}
	cutoff := firstPositive(c.Int("cutoff"), cfg.Evaluation.CutoffK)
	workers := firstPositive(c.Int("workers"), cfg.Evaluation.Workers)

	cases, err := evaluation.LoadDataset(dataset)
	if err != nil {
		return err
	}
	eng, err := loadEngine(c.Context, cfg, mode)
	if err != nil {
		return err
	}

	report, err := evaluation.NewRunner(retriever(eng.Executor, mode, cutoff), cutoff, workers).
		Run(c.Context, mode, dataset, cases)
	if err != nil {
		return err
	}

	if c.Bool("persist") || cfg.Evaluation.Persist {
		if err := persistReport(c.Context, cfg.Postgres, report); err != nil {
			return err
		}
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(c, report)
	return nil
}

func queryCommand(c *cli.Context) error {
	cfg := appConfig(c)
	mode := c.String("mode")
	if err := checkMode(mode); err != nil {
		return err
	}
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query text is required")
	}

	eng, err := loadEngine(c.Context, cfg, mode)
	if err != nil {
		return err
	}
	ctx, span := tracing.StartSpan(c.Context, "query."+mode, "cli")
	defer span.Finish()

	limit := c.Int("limit")
	var resp *executor.Response
	if mode == "lsa" {
		resp, err = eng.Executor.ExecuteLSA(ctx, query, limit)
		if err != nil {
			return err
		}
	} else {
		resp = eng.Executor.Execute(ctx, query, limit)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "method: %s (%s), tokens: %s\n", resp.MethodLabel, resp.Method, strings.Join(resp.Tokens, ", "))
	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "no documents found")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, hit := range resp.Results {
		fmt.Fprintf(tw, "%d.\t%s\t%.4f\n", i+1, hit.DocumentID, hit.Score)
	}
	return tw.Flush()
}

func checkMode(mode string) error {
	if mode != "vsm" && mode != "lsa" {
		return fmt.Errorf("unknown mode %q (want vsm or lsa)", mode)
	}
	return nil
}

func loadEngine(ctx context.Context, cfg *config.Config, mode string) (*engine.Engine, error) {
	if mode == "lsa" {
		cfg.LSA.Enabled = true
	}
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if mode == "lsa" {
		if _, _, err := eng.LoadLatestModel(); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

func retriever(exec *executor.Executor, mode string, cutoff int) evaluation.Retriever {
	return evaluation.RetrieverFunc(func(ctx context.Context, query string) (evaluation.Retrieval, error) {
		var resp *executor.Response
		if mode == "lsa" {
			var err error
			if resp, err = exec.ExecuteLSA(ctx, query, cutoff); err != nil {
				return evaluation.Retrieval{}, err
			}
		} else {
			resp = exec.Execute(ctx, query, cutoff)
		}
		return evaluation.Retrieval{DocumentIDs: resp.DocumentIDs(), Method: string(resp.Method)}, nil
	})
}

func persistReport(ctx context.Context, cfg config.PostgresConfig, report *evaluation.Report) error {
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	store := evalstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	_, err = store.Save(ctx, report)
	return err
}

// withKeyStore connects to PostgreSQL, ensures the key table exists and
// runs fn against it.
func withKeyStore(c *cli.Context, fn func(*apikey.Store) error) error {
	db, err := postgres.New(c.Context, appConfig(c).Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	store := apikey.NewStore(db)
	if err := store.Migrate(c.Context); err != nil {
		return err
	}
	return fn(store)
}

func keysCreateCommand(c *cli.Context) error {
	name := strings.TrimSpace(c.Args().First())
	if name == "" {
		return fmt.Errorf("keys create: a key name is required")
	}
	return withKeyStore(c, func(store *apikey.Store) error {
		raw, err := store.Create(c.Context, name, c.Duration("ttl"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s\n", raw)
		fmt.Fprintln(c.App.ErrWriter, "store this key now; it cannot be shown again")
		return nil
	})
}

func keysListCommand(c *cli.Context) error {
	return withKeyStore(c, func(store *apikey.Store) error {
		keys, err := store.List(c.Context)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "name\tcreated\texpires\tlast used")
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k.Name, k.CreatedAt.Format(time.RFC3339), optionalTime(k.ExpiresAt), optionalTime(k.LastUsedAt))
		}
		return tw.Flush()
	})
}

func keysRevokeCommand(c *cli.Context) error {
	name := strings.TrimSpace(c.Args().First())
	if name == "" {
		return fmt.Errorf("keys revoke: a key name is required")
	}
	return withKeyStore(c, func(store *apikey.Store) error {
		if err := store.Revoke(c.Context, name); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "revoked %s\n", name)
		return nil
	})
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func printReport(c *cli.Context, r *evaluation.Report) {
	out := c.App.Writer
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tquery\tmethod\tP\tR\tF1")
	for i, q := range r.Queries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%.4f\t%.4f\n", i+1, truncate(q.Query, 50), q.Method, q.Precision, q.Recall, q.F1)
	}
	tw.Flush()

	s := r.Summary
	fmt.Fprintf(out, "\nmode=%s cutoff=%d queries=%d\n", r.Mode, r.CutoffK, s.Queries)
	fmt.Fprintf(out, "micro  TP=%d FP=%d FN=%d  P=%.4f R=%.4f F1=%.4f\n",
		s.TotalTP, s.TotalFP, s.TotalFN, s.MicroPrecision, s.MicroRecall, s.MicroF1)
	fmt.Fprintf(out, "macro  P=%.4f R=%.4f F1=%.4f\n", s.MacroPrecision, s.MacroRecall, s.MacroF1)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
