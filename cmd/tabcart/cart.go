package main

import (
	"github.com/spf13/cobra"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Move units between stock and cart",
}

var cartAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Move one unit of an item into the cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cartOp(cmd, func(s *session) error { return s.AddToCart(args[0]) })
	},
}

var cartSubCmd = &cobra.Command{
	Use:     "sub ID",
	Aliases: []string{"subtract"},
	Short:   "Move one unit of an item back to stock",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cartOp(cmd, func(s *session) error { return s.SubtractFromCart(args[0]) })
	},
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Return every cart unit to stock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cartOp(cmd, func(s *session) error { return s.ClearCart() })
	},
}

var cartInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cart size and total price",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cartOp(cmd, func(*session) error { return nil })
	},
}

// cartOp runs op and prints the cart once it has settled.
func cartOp(cmd *cobra.Command, op func(*session) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, "cli:cart "+cmd.Name())
	if err != nil {
		return err
	}
	defer s.Close()
	if err := op(s); err != nil {
		return err
	}
	if err := s.settle(ctx); err != nil {
		return err
	}
	info := s.CartInfo()
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), info)
	}
	printCart(cmd.OutOrStdout(), info)
	return nil
}

func init() {
	cartCmd.AddCommand(cartAddCmd, cartSubCmd, cartClearCmd, cartInfoCmd)
}
