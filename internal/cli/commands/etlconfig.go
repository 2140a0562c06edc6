package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/starmill-data/starmill/internal/etl"
)

// parseETLConfig decodes a YAML or JSON ETL config document. YAML is a
// superset of JSON, so a single decoder handles both.
func parseETLConfig(data []byte) (*etl.Config, error) {
	var ec etl.Config
	if err := yaml.Unmarshal(data, &ec); err != nil {
		return nil, fmt.Errorf("invalid ETL config: %w", err)
	}
	return &ec, nil
}

// NewETLConfigCommand creates the config command group for ETL configs.
func NewETLConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ETL sync configurations",
	}
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigGetCommand())
	cmd.AddCommand(newConfigListCommand())
	cmd.AddCommand(newConfigDeleteCommand())
	return cmd
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <config-file>",
		Short: "Store an ETL config from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}

			ec, err := parseETLConfig(data)
			if err != nil {
				return err
			}
			if ec.DWSchema == "" {
				ec.DWSchema = cfg.DWSchema
			}
			if err := ec.Validate(); err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveETLConfig(ec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored ETL config for cube %q (%s mode, %d mappings)\n",
				ec.CubeName, ec.SyncMode, len(ec.Mappings))
			return nil
		},
	}
}

func newConfigGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <cube>",
		Short: "Print a stored ETL config as JSON",
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

			ec, err := store.GetETLConfig(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ec)
		},
	}
}

func newConfigListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored ETL configs",
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

			configs, err := store.ListETLConfigs()
			if err != nil {
				return err
			}
			if len(configs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No ETL configs stored. Add one with: starmill config set <file>")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Cube", "Fact Table", "Mode", "Last Sync"})
			for _, ec := range configs {
				lastSync := "never"
				if ec.LastSync != nil {
					lastSync = ec.LastSync.Format("2006-01-02 15:04:05")
				}
				t.AppendRow(table.Row{ec.CubeName, ec.FactTable, ec.SyncMode, lastSync})
			}
			t.Render()
			return nil
		},
	}
}

func newConfigDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <cube>",
		Short: "Delete a stored ETL config",
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

			if err := store.DeleteETLConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted ETL config for cube %q\n", args[0])
			return nil
		},
	}
}
