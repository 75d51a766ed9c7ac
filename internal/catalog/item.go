package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Photo is an optional reference to an item image: a URL or a data URL.
// Non-string JSON values (null, objects left behind by binary buffers)
// decode to the empty reference instead of failing the whole record.
type Photo string

func (p *Photo) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '"' {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = Photo(s)
	return nil
}

// Item is one purchasable catalog entry. AmountInStock and AmountInCart are
// two partitions of a fixed per-item total; cart operations move units
// between them and never change the sum.
type Item struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Photo         Photo   `json:"photo,omitempty"`
	Price         float64 `json:"price"`
	ServingSize   string  `json:"servingSize"`
	AmountInStock int     `json:"amountInStock"`
	AmountInCart  int     `json:"amountInCart"`
}

// Units returns AmountInStock + AmountInCart.
func (i Item) Units() int {
	return i.AmountInStock + i.AmountInCart
}

// Validate checks the field constraints enforced on locally issued upserts.
func (i Item) Validate() error {
	switch {
	case strings.TrimSpace(i.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidItem)
	case math.IsNaN(i.Price) || math.IsInf(i.Price, 0):
		return fmt.Errorf("%w: item %q has a non-finite price", ErrInvalidItem, i.ID)
	case i.Price < 0:
		return fmt.Errorf("%w: item %q has negative price", ErrInvalidItem, i.ID)
	case i.AmountInStock < 0:
		return fmt.Errorf("%w: item %q has negative stock", ErrInvalidItem, i.ID)
	case i.AmountInCart < 0:
		return fmt.Errorf("%w: item %q has negative cart amount", ErrInvalidItem, i.ID)
	}
	return nil
}
