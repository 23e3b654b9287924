package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var airportFlags struct {
	name   string
	status string
}

var airportsCmd = &cobra.Command{
	Use:   "airports",
	Short: "List the active airports routes are built from",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		codes, err := a.store.ActiveAirports(cmd.Context())
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			cmd.Printf("no active airports stored, using config: %s\n", strings.Join(cfg.Airports, ", "))
			return nil
		}
		cmd.Println(strings.Join(codes, "\n"))
		return nil
	},
}

var airportsSetCmd = &cobra.Command{
	Use:   "set CODE",
	Short: "Add an airport or change its status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := strings.ToUpper(airportFlags.status)
		if status != "ACTIVE" && status != "INACTIVE" {
			return fmt.Errorf("status must be ACTIVE or INACTIVE, got %q", airportFlags.status)
		}
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.store.SetAirport(cmd.Context(), args[0], airportFlags.name, status); err != nil {
			return err
		}
		cmd.Printf("%s %s\n", strings.ToUpper(args[0]), status)
		return nil
	},
}

func init() {
	airportsSetCmd.Flags().StringVar(&airportFlags.name, "name", "", "airport name")
	airportsSetCmd.Flags().StringVar(&airportFlags.status, "status", "ACTIVE", "ACTIVE or INACTIVE")
	airportsCmd.AddCommand(airportsSetCmd)
	rootCmd.AddCommand(airportsCmd)
}
