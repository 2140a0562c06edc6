package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/starmill-data/starmill/internal/pivot"
)

// NewCompileCommand creates the compile command: pivot request JSON in,
// SQL out, optionally executed against the warehouse.
func NewCompileCommand() *cobra.Command {
	var execute bool

	cmd := &cobra.Command{
		Use:   "compile <request-file>",
		Short: "Compile a pivot request into SQL",
		Long: `Compile reads a pivot request (JSON) and prints the SQL SELECT it
compiles to against the cube's star schema. With --execute the query is
run against the configured warehouse and the results rendered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read request file: %w", err)
			}
			var q pivot.Query
			if err := json.Unmarshal(data, &q); err != nil {
				return fmt.Errorf("invalid pivot request: %w", err)
			}
			if q.CubeName == "" {
				return fmt.Errorf("pivot request has no cube_name")
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			c, err := store.GetCube(q.CubeName)
			if err != nil {
				return err
			}

			sqlText, err := pivot.Compile(c, &q)
			if err != nil {
				return err
			}

			if !execute {
				fmt.Fprintln(cmd.OutOrStdout(), sqlText)
				return nil
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

	cmd.Flags().BoolVar(&execute, "execute", false, "Execute the compiled SQL against the warehouse")
	return cmd
}
