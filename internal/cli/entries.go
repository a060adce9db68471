package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/tiercache"
	"github.com/hupe1980/tiercache/codec"
)

// ErrNotFound is returned by get when no tier holds the key.
var ErrNotFound = errors.New("key not found")

type keyOptions struct {
	namespace string
	category  string
}

func (a *App) newKeyCmd() *cobra.Command {
	opts := &keyOptions{}

	cmd := &cobra.Command{
		Use:   "key <query>",
		Short: "Print the cache key derived from a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(a.stdout, tiercache.GenerateKey(args[0], opts.namespace, opts.category))
			return err
		},
	}

	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "Namespace component of the key")
	cmd.Flags().StringVar(&opts.category, "category", "", "Category component of the key")

	return cmd
}

func (a *App) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under a key",
		Long: `Print the value stored under a key.

With the default raw codec the stored bytes are printed as is. With --codec
json or go-json the value is decoded and printed as indented JSON.

A cold hit is promoted into the warm tier, exactly as it would be for an
application lookup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *tiercache.Cache[[]byte]) error {
				v, ok, err := c.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", ErrNotFound, args[0])
				}
				if a.valueCodec.Name() == (codec.Raw{}).Name() {
					_, err = fmt.Fprintln(a.stdout, string(v))
					return err
				}

				var decoded any
				if err := a.valueCodec.Unmarshal(v, &decoded); err != nil {
					return fmt.Errorf("decode %s with %s: %w", args[0], a.valueCodec.Name(), err)
				}
				return a.printJSON(decoded)
			})
		},
	}
}

type setOptions struct {
	query string
	ttl   time.Duration
}

func (a *App) newSetCmd() *cobra.Command {
	opts := &setOptions{}

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value in every tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *tiercache.Cache[[]byte]) error {
				var setOpts []tiercache.SetOption
				if opts.ttl > 0 {
					setOpts = append(setOpts, tiercache.WithTTLs(opts.ttl, opts.ttl, opts.ttl))
				}
				return c.Set(cmd.Context(), args[0], opts.query, []byte(args[1]), setOpts...)
			})
		},
	}

	cmd.Flags().StringVar(&opts.query, "query", "", "Query text indexed for similarity search")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "Lifetime in every tier (default: tier TTL)")

	return cmd
}

func (a *App) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a key from every tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *tiercache.Cache[[]byte]) error {
				removed, err := c.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%w: %s", ErrNotFound, args[0])
				}
				return nil
			})
		},
	}
}

type similarOptions struct {
	threshold  float64
	best       bool
	outputJSON bool
}

// similarMatch is the JSON form of a match; values are omitted.
type similarMatch struct {
	Key        string  `json:"key"`
	QueryText  string  `json:"query_text"`
	Similarity float64 `json:"similarity"`
	Tier       string  `json:"tier"`
}

func (a *App) newSimilarCmd() *cobra.Command {
	opts := &similarOptions{}

	cmd := &cobra.Command{
		Use:   "similar <text>",
		Short: "List entries whose query text resembles text",
		Long: `List entries whose stored query text has a token Jaccard similarity of at
least --threshold with text, best match first.

Examples:
  tiercache similar "pod crash loop in payments"
  tiercache similar "pod crash loop" --threshold 0.5 --best --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *tiercache.Cache[[]byte]) error {
				return a.similar(cmd, c, args[0], opts)
			})
		},
	}

	cmd.Flags().Float64Var(&opts.threshold, "threshold", -1, "Minimum similarity in [0, 1] (default: configured threshold)")
	cmd.Flags().BoolVar(&opts.best, "best", false, "Only print the best match")
	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")

	return cmd
}

func (a *App) similar(cmd *cobra.Command, c *tiercache.Cache[[]byte], text string, opts *similarOptions) error {
	var matches []tiercache.Match[[]byte]
	if opts.best {
		m, ok, err := c.FindBestMatch(cmd.Context(), text, opts.threshold)
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, m)
		}
	} else {
		var err error
		if matches, err = c.FindSimilar(cmd.Context(), text, opts.threshold); err != nil {
			return err
		}
	}

	out := make([]similarMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, similarMatch{Key: m.Key, QueryText: m.QueryText, Similarity: m.Similarity, Tier: m.Tier.String()})
	}

	if opts.outputJSON {
		return a.printJSON(out)
	}

	if len(out) == 0 {
		_, err := fmt.Fprintln(a.stdout, "no similar entries")
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIMILARITY\tTIER\tKEY\tQUERY")
	for _, m := range out {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", m.Similarity, m.Tier, m.Key, m.QueryText)
	}
	return w.Flush()
}
