package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewQueryCommand creates the query command: raw SQL against the warehouse.
func NewQueryCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a SQL query against the configured warehouse",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			var sqlText string
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read query file: %w", err)
				}
				sqlText = string(data)
			case len(args) == 1:
				sqlText = args[0]
			default:
				return fmt.Errorf("no query given: pass SQL as an argument or use --file")
			}
			sqlText = strings.TrimSpace(sqlText)
			if sqlText == "" {
				return fmt.Errorf("query is empty")
			}

			db, err := connectWarehouse(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			rows, err := db.Query(cmd.Context(), sqlText)
			if err != nil {
				return err
			}
			defer func() { _ = rows.Close() }()
			return renderResults(cmd.OutOrStdout(), rows.Rows, cfg.Output)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the query from a file")
	return cmd
}
