package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/seed"
)

var itemsCmd = &cobra.Command{
	Use:     "items",
	Aliases: []string{"ls"},
	Short:   "List the catalog with cart totals",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withTab(cmd, func(s *session) error {
			return printCatalog(cmd.OutOrStdout(), s.Items(), s.CartInfo())
		})
	},
}

type itemFlags struct {
	id          string
	name        string
	photo       string
	price       float64
	servingSize string
	stock       int
	inCart      int
}

func (f *itemFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.id, "id", "", "item id (generated when empty on add)")
	fs.StringVar(&f.name, "name", "", "display name")
	fs.StringVar(&f.photo, "photo", "", "photo URL")
	fs.Float64Var(&f.price, "price", 0, "unit price")
	fs.StringVar(&f.servingSize, "serving", "", "serving size label")
	fs.IntVar(&f.stock, "stock", 0, "units in stock")
	fs.IntVar(&f.inCart, "in-cart", 0, "units already in the cart")
}

// apply overwrites the fields of it whose flags were set on the command line.
func (f *itemFlags) apply(fs *pflag.FlagSet, it catalog.Item) catalog.Item {
	if fs.Changed("name") {
		it.Name = f.name
	}
	if fs.Changed("photo") {
		it.Photo = catalog.Photo(f.photo)
	}
	if fs.Changed("price") {
		it.Price = f.price
	}
	if fs.Changed("serving") {
		it.ServingSize = f.servingSize
	}
	if fs.Changed("stock") {
		it.AmountInStock = f.stock
	}
	if fs.Changed("in-cart") {
		it.AmountInCart = f.inCart
	}
	return it
}

var (
	addFlags    itemFlags
	updateFlags itemFlags
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an item, replacing any item with the same id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		id := addFlags.id
		if id == "" {
			id = uuid.NewString()
		}
		it := addFlags.apply(cmd.Flags(), catalog.Item{ID: id})
		return withTab(cmd, func(s *session) error {
			if err := s.AddItem(it); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update --id ID [flags]",
	Short: "Change fields of an existing item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if updateFlags.id == "" {
			return fmt.Errorf("--id is required")
		}
		return withTab(cmd, func(s *session) error {
			current, ok := s.Items().Get(updateFlags.id)
			if !ok {
				return fmt.Errorf("item %q: %w", updateFlags.id, catalog.ErrNotFound)
			}
			return s.UpdateItem(updateFlags.apply(cmd.Flags(), current))
		})
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Remove an item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTab(cmd, func(s *session) error {
			return s.RemoveItem(args[0])
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed FILE.yaml",
	Short: "Upsert every item listed in a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := seed.Load(args[0])
		if err != nil {
			return err
		}
		return withTab(cmd, func(s *session) error {
			for _, it := range items {
				if err := s.AddItem(it); err != nil {
					return fmt.Errorf("seed %q: %w", it.ID, err)
				}
			}
			logger.Info("seeded catalog", zap.String("file", args[0]), zap.Int("items", len(items)))
			return nil
		})
	},
}

func init() {
	addFlags.register(addCmd.Flags())
	updateFlags.register(updateCmd.Flags())
}
