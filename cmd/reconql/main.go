package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"reconql/internal/catalog"
	"reconql/internal/config"
	"reconql/internal/engine"
	"reconql/internal/executor"
	"reconql/internal/knowledge"
	"reconql/internal/logging"
	"reconql/internal/observability"
	"reconql/internal/sqlgen"
	"reconql/internal/sqlutil"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	config.RegisterFlags()
	pflag.String("definitions_file", "", "File with one reconciliation definition per line")
	pflag.String("edges_file", "", "JSON file with additional relationship edges")
	pflag.Bool("records_json", false, "Print result records as JSON")

	rootCmd := &cobra.Command{
		Use:     "reconql",
		Short:   "Run natural-language reconciliation queries against a database",
		Version: fmt.Sprintf("%s (%s)", Version, Commit),
		Long: `reconql turns free-text reconciliation definitions like
"show me all products in RBP which are not in OPS Excel" into SQL,
using the database schema and a relationship graph to resolve business
terms, join paths, and requested columns.`,
	}
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)

	rootCmd.AddCommand(runCommand(), analyzeCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [definition ...]",
		Short: "Execute one or more reconciliation definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			app, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.db.Close()

			definitions := args
			if path, _ := pflag.CommandLine.GetString("definitions_file"); path != "" {
				fromFile, err := readDefinitions(path)
				if err != nil {
					return err
				}
				definitions = append(definitions, fromFile...)
			}
			if len(definitions) == 0 {
				return fmt.Errorf("no definitions given: pass them as arguments or via --definitions_file")
			}

			outcomes, stats := app.engine.RunBatch(cmd.Context(), definitions)
			recordsJSON, _ := pflag.CommandLine.GetBool("records_json")
			for _, out := range outcomes {
				printOutcome(out, recordsJSON)
			}

			fmt.Printf("\n%d definitions: %d succeeded, %d failed, %d records, avg confidence %.2f, %s\n",
				stats.Total, stats.Succeeded, stats.Failed,
				stats.TotalRecords, stats.AvgConfidence, stats.Elapsed.Round(1e6))
			if stats.Failed > 0 {
				return fmt.Errorf("%d of %d definitions failed", stats.Failed, stats.Total)
			}
			return nil
		},
	}
}

func analyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Introspect the schema and report tables, relationships, and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			app, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.db.Close()

			fmt.Printf("Tables: %d\n", app.catalog.Len())
			for _, name := range app.catalog.TableNames() {
				fmt.Printf("  %s (%d columns)\n", name, len(app.catalog.ColumnNames(name)))
			}

			fmt.Printf("\nRelationship edges: %d\n", len(app.graph.Edges()))
			for _, e := range app.graph.Edges() {
				fmt.Printf("  %s.%s -> %s.%s (%s, %.2f)\n",
					e.SourceTable, e.SourceColumn, e.TargetTable, e.TargetColumn,
					e.Type, e.Confidence)
			}

			comps := app.graph.Components()
			fmt.Printf("\nConnected components: %d\n", len(comps))
			for i, comp := range comps {
				fmt.Printf("  [%d] %s\n", i+1, strings.Join(comp, ", "))
			}
			return nil
		},
	}
}

// app bundles everything setup builds from one schema snapshot.
type app struct {
	db      *sql.DB
	catalog *catalog.Catalog
	graph   *knowledge.Graph
	engine  *engine.Engine
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		logger.Warn("configuration warning",
			"field", warn.Field, "message", warn.Message, "hint", warn.Hint)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			logger.Error("configuration error",
				"field", err.Field, "message", err.Message, "hint", err.Hint)
		}
		return nil, fmt.Errorf("configuration validation failed")
	}

	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Database.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	dialect := sqlutil.Dialect(cfg.Database.Dialect)
	supplier := catalog.NewDBSupplier(db, cfg.Database.Database, dialect, logger.Logger)
	cat, err := catalog.Load(ctx, supplier)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}
	logger.Info("schema loaded", "tables", cat.Len())

	fks, err := supplier.ListForeignKeys(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}
	edges := knowledge.FromForeignKeys(fks)
	if path, _ := pflag.CommandLine.GetString("edges_file"); path != "" {
		extra, err := readEdges(path)
		if err != nil {
			db.Close()
			return nil, err
		}
		// Supplied edges take precedence over FK-derived ones.
		edges = knowledge.Merge(extra, edges)
	}
	graph := knowledge.NewGraph(edges, logger.Logger)
	logger.Info("relationship graph built", "edges", len(graph.Edges()))

	var metrics *observability.QueryMetrics
	if cfg.Engine.MetricsEnabled {
		metrics, err = observability.InitMetrics(logger.Logger)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	gen := sqlgen.NewGenerator(dialect, cfg.Database.Schema, cat, logger.Logger)
	exec := executor.NewExecutor(db, cfg.Engine.QueryTimeout,
		logger.WithFields("component", "executor"))
	eng := engine.New(cat, graph, gen, exec, engine.Options{
		Metrics:      metrics,
		Workers:      cfg.Engine.Workers,
		DefaultLimit: cfg.Engine.DefaultLimit,
		Logger:       logger.WithFields("component", "engine").Logger,
	})

	return &app{db: db, catalog: cat, graph: graph, engine: eng}, nil
}

func printOutcome(out *engine.Outcome, recordsJSON bool) {
	fmt.Printf("\n> %s\n", out.Definition)
	if out.Err != nil {
		fmt.Printf("  FAILED: %v\n", out.Err)
		return
	}
	res := out.Result
	fmt.Printf("  sql: %s\n", res.SQL)
	if len(res.JoinColumns) > 0 {
		fmt.Printf("  joins: %s\n", strings.Join(res.JoinColumns, "; "))
	}
	if res.Err != nil {
		fmt.Printf("  FAILED: %v\n", res.Err)
		return
	}
	fmt.Printf("  records: %d, confidence: %.2f, duration: %s\n",
		res.RecordCount, res.Confidence, res.Duration.Round(1e6))
	if recordsJSON && len(res.Records) > 0 {
		data, err := json.MarshalIndent(res.Records, "  ", "  ")
		if err == nil {
			fmt.Printf("  %s\n", data)
		}
	}
}

func readDefinitions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open definitions file: %w", err)
	}
	defer f.Close()

	var defs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		defs = append(defs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read definitions file: %w", err)
	}
	return defs, nil
}

// fileEdge is the JSON shape of a supplied relationship edge.
type fileEdge struct {
	SourceTable   string  `json:"source_table"`
	SourceColumn  string  `json:"source_column"`
	TargetTable   string  `json:"target_table"`
	TargetColumn  string  `json:"target_column"`
	Type          string  `json:"relationship_type"`
	Confidence    float64 `json:"confidence"`
	Bidirectional bool    `json:"bidirectional"`
}

func readEdges(path string) ([]knowledge.Edge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read edges file: %w", err)
	}
	var raw []fileEdge
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse edges file: %w", err)
	}
	edges := make([]knowledge.Edge, 0, len(raw))
	for _, e := range raw {
		edges = append(edges, knowledge.Edge{
			SourceTable:   e.SourceTable,
			SourceColumn:  e.SourceColumn,
			TargetTable:   e.TargetTable,
			TargetColumn:  e.TargetColumn,
			Type:          e.Type,
			Confidence:    e.Confidence,
			Bidirectional: e.Bidirectional,
		})
	}
	return edges, nil
}
