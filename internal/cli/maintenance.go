package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/hupe1980/tiercache"
	"github.com/hupe1980/tiercache/prom"
)

// ErrUnhealthy is returned by health when the cache is in critical state.
var ErrUnhealthy = errors.New("cache is unhealthy")

func (a *App) newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [tier...]",
		Short: "Remove every entry from the given tiers (default: all)",
		Long: `Remove every entry from the given tiers.

Examples:
  tiercache clear
  tiercache clear cold`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tiers := make([]tiercache.Tier, 0, len(args))
			for _, arg := range args {
				t, err := tiercache.ParseTier(arg)
				if err != nil {
					return err
				}
				tiers = append(tiers, t)
			}

			return a.withCache(func(c *tiercache.Cache[[]byte]) error {
				return c.Clear(cmd.Context(), tiers...)
			})
		},
	}
}

type reportOptions struct {
	outputJSON bool
}

// tierReport is the JSON form of one tier in the stats output.
type tierReport struct {
	Tier tiercache.Tier
	tiercache.TierStats
	HitRate     float64
	Utilization float64
	Directory   string `json:",omitempty"`
}

type statsReport struct {
	Tiers       []tierReport
	Overall     tiercache.OverallStats
	IndexedKeys int
}

func (a *App) newStatsCmd() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-tier entry counts, sizes and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *tiercache.Cache[[]byte]) error {
				s := c.Stats()
				report := statsReport{Overall: s.Overall, IndexedKeys: s.IndexedKeys}
				for _, t := range tiercache.Tiers {
					ts := s.Tier(t)
					report.Tiers = append(report.Tiers, tierReport{
						Tier:        t,
						TierStats:   ts,
						HitRate:     ts.HitRate(),
						Utilization: ts.Utilization(),
						Directory:   c.Directory(t),
					})
				}

				if opts.outputJSON {
					return a.printJSON(report)
				}
				return a.printStats(report)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")

	return cmd
}

func (a *App) printStats(r statsReport) error {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tENABLED\tENTRIES\tSIZE\tCAPACITY\tUSED\tWRITTEN\tEVICTIONS\tEXPIRATIONS\tCORRUPTIONS\tDIRECTORY")
	for _, t := range r.Tiers {
		fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\t%.1f%%\t%d\t%d\t%d\t%d\t%s\n",
			t.Tier, t.Enabled, t.Entries, t.SizeBytes, t.CapacityBytes, t.Utilization*100,
			t.BytesWritten, t.Evictions, t.Expirations, t.Corruptions, t.Directory)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(a.stdout, "\nindexed keys: %d\n", r.IndexedKeys)
	return err
}

func (a *App) newHealthCmd() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report cache health; exits non-zero when critical",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *tiercache.Cache[[]byte]) error {
				h := c.Health()

				var err error
				if opts.outputJSON {
					err = a.printJSON(h)
				} else {
					err = a.printHealth(h)
				}
				if err != nil {
					return err
				}

				if h.Status == tiercache.StatusCritical {
					return ErrUnhealthy
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")

	return cmd
}

func (a *App) printHealth(h tiercache.Health) error {
	fmt.Fprintf(a.stdout, "status: %s\n", h.Status)
	fmt.Fprintf(a.stdout, "hit rate: %.2f\n", h.HitRate)
	fmt.Fprintf(a.stdout, "eviction rate: %.2f\n", h.EvictionRate)

	for _, t := range h.Tiers {
		if !t.Enabled {
			continue
		}
		line := fmt.Sprintf("%s: %.1f%% used", t.Tier, t.Utilization*100)
		if t.Directory != "" {
			if t.DiskError != "" {
				line += fmt.Sprintf(", disk: %s", t.DiskError)
			} else {
				line += fmt.Sprintf(", disk %.1f%% used (%d of %d bytes free)", t.DiskUsed*100, t.FreeBytes, t.TotalBytes)
			}
		}
		fmt.Fprintln(a.stdout, line)
	}

	for _, issue := range h.Issues {
		fmt.Fprintf(a.stdout, "issue: %s\n", issue)
	}
	for _, rec := range h.Recommendations {
		fmt.Fprintf(a.stdout, "recommendation: %s\n", rec)
	}
	return nil
}

type metricsOptions struct {
	namespace string
}

func (a *App) newMetricsCmd() *cobra.Command {
	opts := &metricsOptions{}

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print a Prometheus text exposition of the cache state",
		RunE: func(cmd *cobra.Command, args []string) error {
			collector := prom.New(prom.WithNamespace(opts.namespace))

			return a.withCache(func(c *tiercache.Cache[[]byte]) error {
				collector.Attach(c)

				reg := prometheus.NewRegistry()
				if err := reg.Register(collector); err != nil {
					return err
				}

				families, err := reg.Gather()
				if err != nil {
					return err
				}
				for _, mf := range families {
					if _, err := expfmt.MetricFamilyToText(a.stdout, mf); err != nil {
						return err
					}
				}
				return nil
			}, tiercache.WithMetricsCollector(collector))
		},
	}

	cmd.Flags().StringVar(&opts.namespace, "namespace", "tiercache", "Metric namespace")

	return cmd
}
