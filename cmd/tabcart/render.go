package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/adityalohuni/tabcart/internal/cart"
	"github.com/adityalohuni/tabcart/internal/catalog"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	totalStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
)

func printCatalog(w io.Writer, snap catalog.Snapshot, info cart.Info) error {
	if jsonOutput {
		return printJSON(w, struct {
			Items catalog.Snapshot `json:"items"`
			Cart  cart.Info        `json:"cart"`
		}{snap, info})
	}
	if snap.Len() == 0 {
		fmt.Fprintln(w, emptyStyle.Render("catalog is empty"))
		return nil
	}

	rows := make([][]string, 0, snap.Len())
	for _, it := range snap.Items() {
		rows = append(rows, []string{
			it.ID,
			it.Name,
			it.ServingSize,
			formatPrice(it.Price),
			strconv.Itoa(it.AmountInStock),
			strconv.Itoa(it.AmountInCart),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "NAME", "SERVING", "PRICE", "STOCK", "CART").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col >= 3:
				return numberStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
	printCart(w, info)
	return nil
}

func printCart(w io.Writer, info cart.Info) {
	fmt.Fprintln(w, totalStyle.Render(fmt.Sprintf("cart: %d item(s), total %s", info.CartSize, formatPrice(info.TotalPrice))))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
