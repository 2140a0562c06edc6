package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/starmill-data/starmill/internal/cli/config"
	"github.com/starmill-data/starmill/internal/cube"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage cube schema definitions",
	}
	cmd.AddCommand(newSchemaLoadCommand())
	cmd.AddCommand(newSchemaListCommand())
	cmd.AddCommand(newSchemaShowCommand())
	return cmd
}

func newSchemaLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <schema-file>",
		Short: "Parse a schema document and store its cubes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			logger := config.GetLogger(cmd.Context())

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open schema file: %w", err)
			}
			defer func() { _ = f.Close() }()

			meta, err := cube.ParseSchema(f)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			for i := range meta.Cubes {
				c := &meta.Cubes[i]
				if err := c.Validate(); err != nil {
					return err
				}
				if err := store.SaveCube(c); err != nil {
					return err
				}
				logger.Info("cube stored", "cube", c.Name, "fact_table", c.FactTable)
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded cube %q (fact table %s, %d dimensions, %d measures)\n",
					c.Name, c.FactTable, len(c.Dimensions), len(c.Measures))
			}
			return nil
		},
	}
}

func newSchemaListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored cubes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			cubes, err := store.ListCubes()
			if err != nil {
				return err
			}
			if len(cubes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cubes stored. Load one with: starmill schema load <file>")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Cube", "Fact Table", "Dimensions", "Measures"})
			for _, c := range cubes {
				t.AppendRow(table.Row{c.Name, c.FactTable, len(c.Dimensions), len(c.Measures)})
			}
			t.Render()
			return nil
		},
	}
}

func newSchemaShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <cube>",
		Short: "Describe a stored cube",
		Args:  cobra.ExactArgs(1),
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

			c, err := store.GetCube(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), c.Describe())
			return nil
		},
	}
}
