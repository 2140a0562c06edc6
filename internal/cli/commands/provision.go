package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/starmill-data/starmill/internal/cli/config"
	"github.com/starmill-data/starmill/internal/ddl"
)

// NewProvisionCommand creates the provision command: star-schema DDL for a
// stored cube, printed or applied.
func NewProvisionCommand() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "provision <cube>",
		Short: "Generate (or apply) the star-schema DDL for a cube",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			logger := config.GetLogger(cmd.Context())

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			c, err := store.GetCube(args[0])
			if err != nil {
				return err
			}

			stmts := ddl.Generate(ddl.FromCube(c, cfg.DWSchema))

			if !apply {
				for _, stmt := range stmts {
					fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", stmt)
				}
				return nil
			}

			db, err := connectWarehouse(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			for _, stmt := range stmts {
				logger.Debug("applying ddl", "sql", stmt)
				if err := db.Exec(cmd.Context(), stmt); err != nil {
					return fmt.Errorf("failed to apply %q: %w", stmt, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d statements for cube %q\n", len(stmts), c.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Apply the DDL to the warehouse instead of printing it")
	return cmd
}
