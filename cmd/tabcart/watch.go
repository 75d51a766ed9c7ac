package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adityalohuni/tabcart/internal/catalog"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep a tab open and print every catalog change",
	Long: `watch keeps a tab open and prints one line per published snapshot,
including the ones merged from other tabs. Stop it with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, "cli:watch")
		if err != nil {
			return err
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		unsub, err := s.SubscribeItems(func(snap catalog.Snapshot) {
			info := s.CartInfo()
			if jsonOutput {
				_ = printJSON(out, struct {
					At    time.Time        `json:"at"`
					Items catalog.Snapshot `json:"items"`
					Total float64          `json:"total"`
				}{time.Now().UTC(), snap, info.TotalPrice})
				return
			}
			fmt.Fprintf(out, "%s  %d item(s)  cart %d  total %s\n",
				time.Now().Format(time.TimeOnly), snap.Len(), info.CartSize, formatPrice(info.TotalPrice))
		})
		if err != nil {
			return err
		}
		defer unsub()

		<-ctx.Done()
		return nil
	},
}
