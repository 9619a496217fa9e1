package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/nft-launchpad/marketplace/internal/http/dto"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
	"github.com/nft-launchpad/marketplace/internal/scenario"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "simulate",
		Short:        "Replay marketplace scenarios against an in-memory chain",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newSplitCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run one or more scenario files and check their expectations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewNop()
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer l.Sync()
				log = l
			}

			failed := 0
			for _, path := range args {
				s, err := scenario.Load(path)
				if err != nil {
					return err
				}
				res, err := scenario.Run(cmd.Context(), s, log)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if asJSON {
					if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
				} else {
					writeReport(cmd.OutOrStdout(), path, res)
				}
				if !res.OK() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity")
	return cmd
}

func newSplitCmd() *cobra.Command {
	var (
		feeBps  uint16
		royalty string
	)
	cmd := &cobra.Command{
		Use:   "split <price>",
		Short: "Show how a sale price is divided between platform, royalty and seller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := scenario.ParseAmount(args[0])
			if err != nil {
				return err
			}
			r, err := scenario.ParseAmount(royalty)
			if err != nil {
				return err
			}
			split, err := marketplace.SplitPayment(price, feeBps, r)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "gross\t%s\t%s ETH\n", split.Gross, dto.FormatETH(split.Gross))
			fmt.Fprintf(w, "platform fee\t%s\t%s ETH\n", split.PlatformFee, dto.FormatETH(split.PlatformFee))
			fmt.Fprintf(w, "royalty\t%s\t%s ETH\n", split.Royalty, dto.FormatETH(split.Royalty))
			fmt.Fprintf(w, "seller\t%s\t%s ETH\n", split.SellerProceeds, dto.FormatETH(split.SellerProceeds))
			return w.Flush()
		},
	}
	cmd.Flags().Uint16Var(&feeBps, "fee-bps", marketplace.DefaultPlatformFeeBps, "platform fee in basis points")
	cmd.Flags().StringVar(&royalty, "royalty", "0", "royalty amount (wei, or ETH with an \"eth\" suffix)")
	return cmd
}

type jsonStep struct {
	Index  int    `json:"index"`
	At     int64  `json:"at"`
	As     string `json:"as"`
	Op     string `json:"op"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
	Events any    `json:"events,omitempty"`
}

type jsonResult struct {
	Name     string            `json:"name"`
	OK       bool              `json:"ok"`
	Steps    []jsonStep        `json:"steps"`
	Balances map[string]string `json:"balances"`
	Stats    marketplace.Stats `json:"stats"`
	Failures []string          `json:"failures,omitempty"`
}

func writeJSON(w io.Writer, res *scenario.Result) error {
	out := jsonResult{
		Name:     res.Name,
		OK:       res.OK(),
		Balances: make(map[string]string, len(res.Balances)),
		Stats:    res.Stats,
		Failures: res.Failures,
	}
	for _, s := range res.Steps {
		js := jsonStep{Index: s.Index, At: s.Step.At, As: s.Step.As, Op: s.Step.Op, Code: s.Code}
		if s.Err != nil {
			js.Error = s.Err.Error()
		}
		if len(s.Events) > 0 {
			js.Events = s.Events
		}
		out.Steps = append(out.Steps, js)
	}
	for name, bal := range res.Balances {
		out.Balances[name] = bal.String()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeReport(w io.Writer, path string, res *scenario.Result) {
	title := res.Name
	if title == "" {
		title = path
	}
	fmt.Fprintf(w, "== %s\n", title)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tat\tas\top\tresult")
	for _, s := range res.Steps {
		result := fmt.Sprintf("ok, %d events", len(s.Events))
		if s.Err != nil {
			result = "reverted: " + s.Code
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", s.Index, s.Step.At, s.Step.As, s.Step.Op, result)
	}
	_ = tw.Flush()

	fmt.Fprintln(w, "\nbalances:")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	names := make([]string, 0, len(res.Balances))
	for name := range res.Balances {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\t%s ETH\n", name, res.Balances[name], dto.FormatETH(res.Balances[name]))
	}
	_ = tw.Flush()

	vol := res.Stats.TotalVolume
	if vol == nil {
		vol = new(big.Int)
	}
	fmt.Fprintf(w, "\nsales: %d, volume: %s ETH, listings: %d, offers: %d\n",
		res.Stats.TotalSales, dto.FormatETH(vol), res.Stats.TotalListings, res.Stats.TotalOffers)

	if res.OK() {
		fmt.Fprintln(w, "PASS")
		return
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "FAIL %s\n", f)
	}
}
