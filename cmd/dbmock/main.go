package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"dbmock/internal/config"
	"dbmock/internal/core"
	"dbmock/internal/db"
	"dbmock/internal/extract"
	_ "dbmock/internal/extract/mysql"
	_ "dbmock/internal/extract/postgresql"
	_ "dbmock/internal/extract/sqlite"
	"dbmock/internal/fabricate"
	"dbmock/internal/generate"
	"dbmock/internal/insert"
	"dbmock/internal/log"
	"dbmock/internal/plan"
	"dbmock/internal/router"
)

func main() {
	var (
		cfgPath   string
		dsn       string
		driver    string
		logLevel  string
		logFormat string
	)

	rootCmd := &cobra.Command{
		Use:   "dbmock",
		Short: "Schema-aware mock data generator for live databases",
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database connection string")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "Database dialect: mysql, postgresql, or sqlite")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	loadConfig := func() (*config.Config, error) {
		cfg := config.Default()
		if cfgPath != "" {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
		if dsn != "" {
			cfg.DSN = dsn
		}
		if driver != "" {
			cfg.Driver = driver
		}
		if cfg.DSN == "" {
			return nil, fmt.Errorf("--dsn is required (or set dsn in the config file)")
		}
		if !core.ValidDialect(cfg.Driver) {
			return nil, fmt.Errorf("unsupported driver %q; expected one of mysql, postgresql, sqlite", cfg.Driver)
		}
		return cfg, nil
	}

	connect := func(ctx context.Context, cfg *config.Config) (*db.Conn, func(), error) {
		conn, err := db.Open(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() {
			if err := conn.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to close database connection: %v\n", err)
			}
		}, nil
	}

	var analyzeFormat string
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Extract and print table specifications from the live database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := log.New(logFormat, logLevel, os.Stderr)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			conn, closeConn, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeConn()

			specs, err := extract.All(ctx, conn, extract.Filter{
				Include: cfg.IncludeTables,
				Exclude: cfg.ExcludeTables,
			}, logger)
			if err != nil {
				return err
			}

			if strings.EqualFold(analyzeFormat, "json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(specs)
			}
			printSpecs(specs)
			return nil
		},
	}
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "human", "Output format: human or json")

	var planFormat string
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the dependency-ordered insertion plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := log.New(logFormat, logLevel, os.Stderr)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			conn, closeConn, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeConn()

			specs, err := extract.All(ctx, conn, extract.Filter{
				Include: cfg.IncludeTables,
				Exclude: cfg.ExcludeTables,
			}, logger)
			if err != nil {
				return err
			}

			p := plan.Build(specs)
			if strings.EqualFold(planFormat, "json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}
			printPlan(p)
			return nil
		},
	}
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "human", "Output format: human or json")

	var (
		genRows    int
		genDryRun  bool
		genSeed    int64
		genBatch   int
		genDonors  []string
		genInclude []string
		genExclude []string
	)
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and insert schema-conformant mock data",
		Long: `Generate introspects the live schema, plans a foreign-key-safe insertion
order, fabricates rows that satisfy every declared column constraint, and
inserts them in batches.

Examples:
  dbmock generate --driver mysql --dsn "user:pass@tcp(localhost:3306)/shop" --rows 100
  dbmock generate -c dbmock.toml --dry-run
  dbmock generate -c dbmock.toml --use-existing countries --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rows") {
				cfg.RowsPerTable = genRows
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = genSeed
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = genBatch
			}
			if len(genDonors) > 0 {
				cfg.UseExistingTables = append(cfg.UseExistingTables, genDonors...)
			}
			if len(genInclude) > 0 {
				cfg.IncludeTables = append(cfg.IncludeTables, genInclude...)
			}
			if len(genExclude) > 0 {
				cfg.ExcludeTables = append(cfg.ExcludeTables, genExclude...)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := log.New(logFormat, logLevel, os.Stderr)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			conn, closeConn, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeConn()

			specs, err := extract.All(ctx, conn, extract.Filter{
				Include: cfg.IncludeTables,
				Exclude: cfg.ExcludeTables,
			}, logger)
			if err != nil {
				return err
			}
			if len(specs) == 0 {
				return fmt.Errorf("no tables selected")
			}

			p := plan.Build(specs)
			for _, cycle := range p.Cycles {
				logger.Warn("dependency cycle detected", "cycle", strings.Join(cycle, " -> "))
			}

			fab := fabricate.New(cfg.Seed, conn)
			rtr := router.New(conn, cfg, cfg.PreferExistingFKValues, fab.RNG())
			gen := generate.New(specs, p, cfg, rtr, fab, logger)

			integrity, err := gen.ValidateFKIntegrityForSelection(ctx)
			if err != nil {
				return err
			}
			for child, parents := range integrity {
				for parent, ok := range parents {
					if !ok {
						logger.Warn("referenced table has no existing rows",
							"table", child, "references", parent)
					}
				}
			}

			executor := insert.NewExecutor(conn, logger)
			var sink generate.Sink = executor
			if genDryRun {
				sink = &insert.Preview{Out: os.Stdout}
			} else if cfg.TruncateExisting {
				// Children first so foreign keys never dangle.
				for i := len(p.Order) - 1; i >= 0; i-- {
					table := p.Order[i]
					if cfg.SelectedForGeneration(table) {
						if err := executor.Truncate(ctx, table); err != nil {
							return err
						}
					}
				}
			}

			result, err := gen.Run(ctx, sink)
			printResult(result)
			if err != nil {
				return err
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d table(s) failed", len(result.Failed))
			}
			return nil
		},
	}
	generateCmd.Flags().IntVarP(&genRows, "rows", "n", 10, "Rows to generate per table (overridden per table in config)")
	generateCmd.Flags().BoolVarP(&genDryRun, "dry-run", "d", false, "Print rows as JSON lines instead of inserting")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 0, "Seed for reproducible runs (0 = random)")
	generateCmd.Flags().IntVar(&genBatch, "batch-size", 500, "Rows per INSERT batch")
	generateCmd.Flags().StringSliceVar(&genDonors, "use-existing", nil, "Donor tables: referenced for FK values, never written")
	generateCmd.Flags().StringSliceVar(&genInclude, "include", nil, "Only these tables")
	generateCmd.Flags().StringSliceVar(&genExclude, "exclude", nil, "Skip these tables")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "dbmock.toml"
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteExample(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(initCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printSpecs(specs map[string]*core.TableSpec) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := specs[name]
		fmt.Printf("TABLE %s (%d rows)\n", spec.Name, spec.RowCount)
		if len(spec.PrimaryKeys) > 0 {
			fmt.Printf("  primary key: %s\n", strings.Join(spec.PrimaryKeys, ", "))
		}
		for _, col := range spec.Columns {
			var notes []string
			if !col.Nullable {
				notes = append(notes, "not null")
			}
			if col.AutoIncrement {
				notes = append(notes, "auto_increment")
			}
			if col.Unique {
				notes = append(notes, "unique")
			}
			if col.Default != nil {
				notes = append(notes, "default "+*col.Default)
			}
			suffix := ""
			if len(notes) > 0 {
				suffix = "  [" + strings.Join(notes, ", ") + "]"
			}
			fmt.Printf("  %-24s %s%s\n", col.Name, col.RawType, suffix)
		}
		for _, fk := range spec.ForeignKeys {
			fmt.Printf("  fk: %s -> %s(%s)\n",
				strings.Join(fk.LocalColumns, ","), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ","))
		}
		for _, uc := range spec.UniqueConstraints {
			fmt.Printf("  unique: (%s)\n", strings.Join(uc, ", "))
		}
		fmt.Println()
	}
}

func printPlan(p *plan.InsertionPlan) {
	fmt.Println("INSERTION ORDER:")
	for i, batch := range p.Batches() {
		if len(batch) == 1 {
			fmt.Printf("  %2d. %s\n", i+1, batch[0])
		} else {
			fmt.Printf("  %2d. parallel: %s\n", i+1, strings.Join(batch, ", "))
		}
	}

	var withDeps []string
	for table, deps := range p.Graph {
		if len(deps) > 0 {
			withDeps = append(withDeps, fmt.Sprintf("  %-24s -> %s", table, strings.Join(deps, ", ")))
		}
	}
	if len(withDeps) > 0 {
		sort.Strings(withDeps)
		fmt.Println("\nDEPENDENCIES:")
		for _, line := range withDeps {
			fmt.Println(line)
		}
	}

	if len(p.Cycles) > 0 {
		fmt.Println("\nCYCLES:")
		for _, cycle := range p.Cycles {
			fmt.Printf("  %s -> %s\n", strings.Join(cycle, " -> "), cycle[0])
		}
	}

	if len(p.IndependentTables) > 0 {
		fmt.Printf("\nINDEPENDENT: %s\n", strings.Join(p.IndependentTables, ", "))
	}
}

func printResult(result *generate.Result) {
	names := make([]string, 0, len(result.Generated))
	for name := range result.Generated {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err, failed := result.Failed[name]; failed {
			fmt.Printf("  %-24s %d rows (FAILED: %v)\n", name, result.Generated[name], err)
		} else {
			fmt.Printf("  %-24s %d rows\n", name, result.Generated[name])
		}
	}
}
