// Command gwctl is the inference gateway's operator CLI: validate a
// configuration file, list the providers and canonical models it declares,
// list the models known to the cost catalog, and print build version info.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	gateway "github.com/ferro-labs/inference-gateway"
	"github.com/ferro-labs/inference-gateway/internal/cost"
	"github.com/ferro-labs/inference-gateway/internal/version"
	"github.com/ferro-labs/inference-gateway/plugin"
	"github.com/spf13/cobra"

	// Register built-in plugins so "gwctl validate" can confirm they load.
	_ "github.com/ferro-labs/inference-gateway/internal/plugins/cache"
	_ "github.com/ferro-labs/inference-gateway/internal/plugins/logger"
	_ "github.com/ferro-labs/inference-gateway/internal/plugins/maxtoken"
	_ "github.com/ferro-labs/inference-gateway/internal/plugins/ratelimit"
	_ "github.com/ferro-labs/inference-gateway/internal/plugins/wordfilter"
)

func main() {
	root := &cobra.Command{
		Use:   "gwctl",
		Short: "Operate and inspect an inference gateway deployment",
	}
	root.AddCommand(newValidateCmd())
	root.AddCommand(newProvidersCmd())
	root.AddCommand(newModelsCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gateway.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := gateway.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			fmt.Println("config is valid")
			fmt.Printf("  providers:        %d\n", len(cfg.Providers))
			fmt.Printf("  canonical models: %d\n", len(cfg.CanonicalModels))
			fmt.Printf("  aliases:          %d\n", len(cfg.Aliases))
			fmt.Printf("  combos:           %d\n", len(cfg.Combos))

			if len(cfg.Plugins) > 0 {
				var names []string
				for _, p := range cfg.Plugins {
					status := "disabled"
					if p.Enabled {
						status = "enabled"
					}
					if _, ok := plugin.GetFactory(p.Name); !ok {
						status = "unknown factory"
					}
					names = append(names, fmt.Sprintf("%s@%s (%s)", p.Name, p.Stage, status))
				}
				fmt.Printf("  plugins:          %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func newProvidersCmd() *cobra.Command {
	list := &cobra.Command{
		Use:   "list <config-file>",
		Short: "List the providers declared in a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gateway.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			for _, pc := range cfg.Providers {
				status := "disabled"
				if pc.Enabled {
					status = "enabled"
				}
				fmt.Printf("%-24s kind=%-12s tier=%d free_tier=%-5t %s\n",
					pc.Key, pc.Kind, pc.Tier, pc.FreeTier, status)
			}
			return nil
		},
	}
	cmd := &cobra.Command{Use: "providers", Short: "Inspect configured providers"}
	cmd.AddCommand(list)
	return cmd
}

func newModelsCmd() *cobra.Command {
	list := &cobra.Command{
		Use:   "list",
		Short: "List the models known to the cost catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := cost.Load()
			if err != nil {
				return fmt.Errorf("loading catalog: %w", err)
			}
			keys := make([]string, 0, len(catalog))
			for k := range catalog {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				m := catalog[k]
				price := "—"
				if m.Pricing.InputPerMTokens != nil {
					price = fmt.Sprintf("$%.2f/M in", *m.Pricing.InputPerMTokens)
				}
				fmt.Printf("%-40s %-24s %s\n", k, m.DisplayName, price)
			}
			fmt.Printf("\n%d model(s)\n", len(catalog))
			return nil
		},
	}
	cmd := &cobra.Command{Use: "models", Short: "Inspect the cost catalog"}
	cmd.AddCommand(list)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.String())
			return nil
		},
	}
}
