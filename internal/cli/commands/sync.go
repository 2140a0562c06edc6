package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/starmill-data/starmill/internal/cli/config"
	"github.com/starmill-data/starmill/internal/etl"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "sync <cube>",
		Short: "Load a cube's star schema from its source tables",
		Long: `Sync loads the warehouse star schema for a cube according to its
stored ETL config: dimensions first (deduplicated by content hash), then
the fact table, in one transaction. Incremental mode appends rows newer
than the last successful sync; --full forces a truncate-and-reload.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			eng := etl.NewEngine(etl.EngineConfig{
				Store:         store,
				AdapterConfig: cfg.AdapterConfig(),
				Logger:        config.GetLogger(cmd.Context()),
			})
			defer func() { _ = eng.Close() }()

			result, syncErr := eng.Sync(cmd.Context(), args[0], full)
			printSyncResult(cmd, result)
			return syncErr
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Force a full truncate-and-reload sync")
	return cmd
}

func printSyncResult(cmd *cobra.Command, result *etl.SyncResult) {
	if result == nil {
		return
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Sync %s: %s (%s mode, %d rows, %s)\n",
		result.CubeName, result.Status, result.Mode, result.RowsInserted,
		result.Duration.Round(time.Millisecond))

	if len(result.Details) == 0 {
		return
	}

	tables := make([]string, 0, len(result.Details))
	for name := range result.Details {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Status", "Rows", "Detail"})
	for _, name := range tables {
		d := result.Details[name]
		t.AppendRow(table.Row{name, d.Status, d.RowsInserted, d.Reason})
	}
	t.Render()
}
