package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/providers"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers and whether they can run",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tACTIVE\tCONCURRENCY\tSTATUS")
		for _, p := range config.NewCatalog(cfg).All() {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n", p.Name, p.Kind, p.Active, p.Limit(), providerStatus(p))
		}
		if len(cfg.Providers) == 0 {
			fmt.Fprintf(tw, "(none configured; kinds: %s)\n", strings.Join(providers.Kinds, ", "))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// providerStatus builds the adapter and its merged mapping the same way a
// run does, without fetching anything.
func providerStatus(p config.ProviderConfig) string {
	if !p.Active {
		return "inactive"
	}
	a, err := providers.New(p)
	if err != nil {
		return err.Error()
	}
	m := a.DefaultMapping().Merge(p.Mapping).WithDefaults()
	if err := m.Validate(); err != nil {
		return "mapping: " + err.Error()
	}
	return fmt.Sprintf("ready (%d mapped fields)", len(m))
}
