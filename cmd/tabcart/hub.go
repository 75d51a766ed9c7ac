package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/adityalohuni/tabcart/internal/adminclient"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Inspect a running tabcartd through its admin API",
}

func adminClient() *adminclient.Client {
	return adminclient.New(settings.AdminBaseURL, settings.AdminToken, nil)
}

var hubStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon uptime, tab count and stored cart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := adminClient().Status(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "uptime   %s\nbackend  %s\ntabs     %d\nitems    %d\n", st.Uptime, st.Backend, st.Tabs, st.Items)
		if st.SlotError != "" {
			fmt.Fprintf(out, "slot     %s\n", st.SlotError)
		}
		printCart(out, st.Cart)
		return nil
	},
}

var hubTabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List tabs connected to the hub",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tabs, err := adminClient().ListTabs(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tabs)
		}
		rows := make([][]string, 0, len(tabs))
		for _, t := range tabs {
			rows = append(rows, []string{
				t.ID, t.Name, t.Transport, t.RemoteAddr, t.Origin,
				strconv.Itoa(t.Writes),
				time.Since(t.LastSeen).Truncate(time.Second).String(),
			})
		}
		tbl := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers("ID", "NAME", "TRANSPORT", "REMOTE", "ORIGIN", "WRITES", "IDLE").
			Rows(rows...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
		return nil
	},
}

var hubKickCmd = &cobra.Command{
	Use:   "kick ID",
	Short: "Disconnect a websocket tab",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return adminClient().DisconnectTab(cmd.Context(), args[0])
	},
}

func init() {
	hubCmd.AddCommand(hubStatusCmd, hubTabsCmd, hubKickCmd)
}
