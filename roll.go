/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Seednode/whopays/outcome"
	"github.com/Seednode/whopays/roster"
	"github.com/Seednode/whopays/session"
)

type rollOptions struct {
	amount string
	mode   string
	seed   uint64
	share  bool
	split  int
}

func (o *rollOptions) source() (outcome.RandomSource, error) {
	if o.seed != 0 {
		return outcome.NewSource(o.seed), nil
	}

	return outcome.NewRandomSource()
}

// roll runs one draw for names and returns the lines to print.
func (o *rollOptions) roll(names []string) ([]string, error) {
	r, err := roster.New(names...)
	if err != nil {
		return nil, err
	}

	mode, err := outcome.ParseMode(o.mode)
	if err != nil {
		return nil, err
	}

	amount, err := session.ParseAmount(o.amount)
	if err != nil {
		return nil, err
	}

	src, err := o.source()
	if err != nil {
		return nil, err
	}

	out, err := outcome.Compute(outcome.Request{
		Roster:      r.Names(),
		Mode:        mode,
		Amount:      amount,
		SplitTarget: o.split,
	}, src)
	if err != nil {
		return nil, err
	}

	lines := []string{out.Message}
	if o.share {
		lines = append(lines, outcome.ShareText(out.Message))
	}

	return lines, nil
}

func newRollCmd() *cobra.Command {
	opts := &rollOptions{}

	cmd := &cobra.Command{
		Use:   "roll [flags] name name [name...]",
		Short: "Pick who pays from the terminal.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := opts.roll(args)
			if err != nil {
				return err
			}

			for i, line := range lines {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			return nil
		},
	}

	fs := cmd.Flags()

	fs.StringVarP(&opts.amount, "amount", "a", "", "bill amount in rupees, blank for none (env: WHOPAYS_AMOUNT)")
	fs.StringVarP(&opts.mode, "mode", "m", outcome.OnePays.String(), "one-pays, split-all or split-some (env: WHOPAYS_MODE)")
	fs.Uint64Var(&opts.seed, "seed", 0, "seed for a reproducible draw, 0 for a random one (env: WHOPAYS_SEED)")
	fs.BoolVar(&opts.share, "share", false, "also print the one-line share text (env: WHOPAYS_SHARE)")
	fs.IntVarP(&opts.split, "split", "s", session.DefaultSplitPreset, "how many people split in split-some mode (env: WHOPAYS_SPLIT)")

	bindEnv(newViper(), fs)

	return cmd
}
