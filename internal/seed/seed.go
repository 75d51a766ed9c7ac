// Package seed reads an externally supplied catalog from a YAML file.
package seed

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/adityalohuni/tabcart/internal/catalog"
)

// File is the layout of a seed file.
type File struct {
	Items []Entry `yaml:"items"`
}

// Entry is one item in a seed file. A missing id is generated.
type Entry struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Photo         string  `yaml:"photo"`
	Price         float64 `yaml:"price"`
	ServingSize   string  `yaml:"serving_size"`
	AmountInStock int     `yaml:"stock"`
	AmountInCart  int     `yaml:"in_cart"`
}

// Load reads path and returns its items in file order.
func Load(path string) ([]catalog.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) ([]catalog.Item, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	items := make([]catalog.Item, 0, len(f.Items))
	seen := make(map[string]int, len(f.Items))
	for i, e := range f.Items {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if prev, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("seed: item %d reuses id %q of item %d", i+1, e.ID, prev+1)
		}
		seen[e.ID] = i
		it := catalog.Item{
			ID:            e.ID,
			Name:          e.Name,
			Photo:         catalog.Photo(e.Photo),
			Price:         e.Price,
			ServingSize:   e.ServingSize,
			AmountInStock: e.AmountInStock,
			AmountInCart:  e.AmountInCart,
		}
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("seed: item %d: %w", i+1, err)
		}
		items = append(items, it)
	}
	return items, nil
}
