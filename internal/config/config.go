// Package config holds the run configuration: connection parameters, table
// selection, per-table row budgets, and generation knobs. Files are TOML.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ColumnConfig pins a column to caller-chosen values. A pinned foreign-key
// column bypasses the router entirely.
type ColumnConfig struct {
	PossibleValues []any    `toml:"possible_values"`
	MinValue       *float64 `toml:"min_value"`
	MaxValue       *float64 `toml:"max_value"`
}

// Pinned reports whether the column carries any override.
func (c *ColumnConfig) Pinned() bool {
	return c != nil && (len(c.PossibleValues) > 0 || c.MinValue != nil || c.MaxValue != nil)
}

// TableConfig carries the per-table generation budget and overrides.
type TableConfig struct {
	RowsToGenerate  int                      `toml:"rows_to_generate"`
	UseExistingData bool                     `toml:"use_existing_data"`
	Columns         map[string]*ColumnConfig `toml:"columns"`
}

// Config is the full run configuration.
type Config struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`

	IncludeTables     []string `toml:"include_tables"`
	ExcludeTables     []string `toml:"exclude_tables"`
	UseExistingTables []string `toml:"use_existing_tables"`

	Tables map[string]*TableConfig `toml:"tables"`

	RowsPerTable           int   `toml:"rows_per_table"`
	BatchSize              int   `toml:"batch_size"`
	Seed                   int64 `toml:"seed"`
	TruncateExisting       bool  `toml:"truncate_existing"`
	PreferExistingFKValues bool  `toml:"prefer_existing_fk_values"`
	FailFast               bool  `toml:"fail_fast"`
	Parallel               bool  `toml:"parallel"`

	// Reserved: accepted and validated but not yet acted upon.
	AnalyzeExistingData bool `toml:"analyze_existing_data"`
	PatternSampleSize   int  `toml:"pattern_sample_size"`
}

// Default returns a config with usable generation defaults.
func Default() *Config {
	return &Config{
		RowsPerTable: 10,
		BatchSize:    500,
		Tables:       make(map[string]*TableConfig),
	}
}

// Load reads and validates a TOML config file. Unknown keys are rejected so
// typos surface instead of silently doing nothing.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	if cfg.Tables == nil {
		cfg.Tables = make(map[string]*TableConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural sanity of the configuration.
func (c *Config) Validate() error {
	if c.RowsPerTable < 0 {
		return fmt.Errorf("rows_per_table must be non-negative, got %d", c.RowsPerTable)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	for name, tc := range c.Tables {
		if tc == nil {
			continue
		}
		if tc.RowsToGenerate < 0 {
			return fmt.Errorf("tables.%s.rows_to_generate must be non-negative, got %d", name, tc.RowsToGenerate)
		}
	}
	if c.PatternSampleSize < 0 {
		return fmt.Errorf("pattern_sample_size must be non-negative, got %d", c.PatternSampleSize)
	}
	return nil
}

// IsDonor reports whether the table was designated donor-only: its rows feed
// foreign keys, but no rows are generated into it.
func (c *Config) IsDonor(table string) bool {
	for _, t := range c.UseExistingTables {
		if t == table {
			return true
		}
	}
	if tc, ok := c.Tables[table]; ok && tc != nil && tc.UseExistingData {
		return true
	}
	return false
}

// RowsFor returns the row budget for a table: the per-table override when
// present, otherwise the global default. Donor tables always get zero.
func (c *Config) RowsFor(table string) int {
	if c.IsDonor(table) {
		return 0
	}
	if tc, ok := c.Tables[table]; ok && tc != nil {
		return tc.RowsToGenerate
	}
	return c.RowsPerTable
}

// SelectedForGeneration reports whether new rows will be generated into the
// table this run.
func (c *Config) SelectedForGeneration(table string) bool {
	return c.RowsFor(table) > 0
}

// ColumnFor returns the pin configuration for table.column, or nil.
func (c *Config) ColumnFor(table, column string) *ColumnConfig {
	tc, ok := c.Tables[table]
	if !ok || tc == nil {
		return nil
	}
	return tc.Columns[column]
}

// WriteExample writes a commented starter config to path.
func WriteExample(path string) error {
	const example = `# dbmock configuration

driver = "mysql"            # mysql | postgresql | sqlite
dsn = "user:pass@tcp(localhost:3306)/mydb"

rows_per_table = 10
batch_size = 500
# seed = 42                 # set for reproducible runs
truncate_existing = false
prefer_existing_fk_values = false

include_tables = []
exclude_tables = []
use_existing_tables = []    # donor tables: referenced, never written

[tables.users]
rows_to_generate = 100

[tables.users.columns.country_id]
possible_values = [1, 2, 3]
`
	return os.WriteFile(path, []byte(example), 0o644)
}
