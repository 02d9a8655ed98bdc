package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"pictopercept/internal/config"
	"pictopercept/internal/survey"
)

func newDeckCmd(projectRoot *string) *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "deck",
		Short: "Build a deck from the configured corpus and print its trial schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, _, err := config.Load(*projectRoot)
			if err != nil {
				return err
			}
			return printDeck(cmd.Context(), cmd.OutOrStdout(), *projectRoot, conf, seed)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "shuffle seed (0 seeds from the clock)")
	return cmd
}

func printDeck(ctx context.Context, out io.Writer, projectRoot string, conf *config.Config, seed int64) error {
	stimuli, err := newProvider(projectRoot, conf.Stimuli).ListImages(ctx)
	if err != nil {
		return err
	}

	var opts []survey.Option
	if seed != 0 {
		opts = append(opts, survey.WithSeed(seed))
	}
	if conf.Survey.RequireFullSchedule {
		opts = append(opts, survey.WithFullSchedule())
	}
	deck, err := survey.NewBuilder(opts...).Build(stimuli)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Item", "Cursor", "First", "Second", "Check"})
	table.SetAutoWrapText(false)
	for _, t := range deck.Schedule() {
		check := ""
		if t.IsAttentionCheck {
			check = "yes"
		}
		table.Append([]string{strconv.Itoa(t.ItemNumber()), strconv.Itoa(t.Index), t.StimulusA.Name, t.StimulusB.Name, check})
	}
	table.Render()

	positions := make([]string, 0, len(deck.Overrides))
	for _, pos := range deck.Overrides.Positions() {
		positions = append(positions, strconv.Itoa(pos))
	}
	fmt.Fprintf(out, "\n%d stimuli, %d in the pool, attention pair %s / %s\n",
		len(stimuli), deck.PoolSize(), deck.AttentionPair[0].Name, deck.AttentionPair[1].Name)
	fmt.Fprintf(out, "attention checks at cursors %s\n", strings.Join(positions, ", "))
	return nil
}
