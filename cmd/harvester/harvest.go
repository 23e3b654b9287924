package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
)

var harvestFlags struct {
	sources     []string
	origin      string
	destination string
	date        string
	days        int
	asJSON      bool
}

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Run one harvest and store the offers",
	Long: `Runs every active provider over the configured routes and search dates.
--source, --origin/--destination and --date narrow the run to a single
provider, route or day.`,
	RunE: runHarvest,
}

func init() {
	f := harvestCmd.Flags()
	f.StringSliceVar(&harvestFlags.sources, "source", nil, "provider name(s) to run")
	f.StringVar(&harvestFlags.origin, "origin", "", "origin airport code")
	f.StringVar(&harvestFlags.destination, "destination", "", "destination airport code")
	f.StringVar(&harvestFlags.date, "date", "", "search date YYYY-MM-DD (default today + days_ahead)")
	f.IntVar(&harvestFlags.days, "days", 0, "number of consecutive dates to search")
	f.BoolVar(&harvestFlags.asJSON, "json", false, "print the full report as JSON")
	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if harvestFlags.days > 0 {
		cfg.Days = harvestFlags.days
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	req := a.defaultRequest()
	req.Sources = harvestFlags.sources
	if harvestFlags.origin != "" || harvestFlags.destination != "" {
		if harvestFlags.origin == "" || harvestFlags.destination == "" {
			return errors.New("--origin and --destination go together")
		}
		r, err := flight.ParseRoute(harvestFlags.origin + "-" + harvestFlags.destination)
		if err != nil {
			return err
		}
		req.Routes = []flight.Route{r}
	}
	if harvestFlags.date != "" {
		first, err := time.Parse("2006-01-02", harvestFlags.date)
		if err != nil {
			return fmt.Errorf("bad --date: %w", err)
		}
		req.Dates = nil
		for i := 0; i < max(cfg.Days, 1); i++ {
			req.Dates = append(req.Dates, first.AddDate(0, 0, i))
		}
	}

	rep, err := a.harvest.Run(ctx, req)
	if rep == nil {
		return err
	}
	if harvestFlags.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if jerr := enc.Encode(rep); jerr != nil {
			return jerr
		}
	} else {
		printReport(cmd, rep)
	}
	return err
}

func printReport(cmd *cobra.Command, rep *harvest.Report) {
	s := rep.Summary()
	cmd.Printf("run %s: %s in %s\n", s.RunID, s.State, s.Duration)
	for _, sk := range rep.Skipped {
		cmd.Printf("  skipped %-12s %s\n", sk.Provider, sk.Reason)
	}
	for _, u := range rep.Units {
		line := fmt.Sprintf("  %-12s %s %s  %-9s raw=%d offers=%d",
			u.Provider, u.Route, u.Date.Format("2006-01-02"), u.Status, u.Raw, u.Offers)
		if u.Error != "" {
			line += "  " + strings.ReplaceAll(u.Error, "\n", "; ")
		}
		cmd.Println(line)
	}
	if len(rep.Rejected) > 0 {
		cmd.Printf("rejected: %v\n", rep.Rejected)
	}
	cmd.Printf("accepted %d offers (%d units, %d failed, %d abandoned)\n",
		s.Accepted, s.Units, s.Failed, s.Abandoned)
}
