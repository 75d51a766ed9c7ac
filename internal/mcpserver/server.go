// Package mcpserver exposes one tab's catalog and cart as MCP tools and
// resources.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adityalohuni/tabcart/internal/cart"
	"github.com/adityalohuni/tabcart/internal/catalog"
)

// Catalog is the tab surface the server drives, e.g. *tab.Tab.
type Catalog interface {
	Items() catalog.Snapshot
	CartInfo() cart.Info
	AddItem(catalog.Item) error
	UpdateItem(catalog.Item) error
	RemoveItem(id string) error
	AddToCart(id string) error
	SubtractFromCart(id string) error
	ClearCart() error
}

type Options struct {
	Implementation *mcp.Implementation
	Instructions   string
}

type Server struct {
	mcpServer *mcp.Server
	catalog   Catalog
}

const defaultInstructions = "Use catalog.list to see items and cart totals. " +
	"cart.add moves one unit from stock into the cart and fails when the item is out of stock."

func New(c Catalog, opts Options) *Server {
	impl := opts.Implementation
	if impl == nil {
		impl = &mcp.Implementation{Name: "tabcart", Version: "v1.0.0"}
	}
	instructions := opts.Instructions
	if instructions == "" {
		instructions = defaultInstructions
	}
	server := mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions})
	s := &Server{mcpServer: server, catalog: c}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "catalog.list",
		Description: "List every catalog item in display order together with the cart totals.",
	}, s.list)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "catalog.upsert",
		Description: "Add an item, or overwrite the item with the same id.",
	}, s.upsert)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "catalog.update",
		Description: "Overwrite an existing item. Fails if the id is unknown.",
	}, s.update)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "catalog.remove",
		Description: "Remove an item by id. Removing an unknown id does nothing.",
	}, s.remove)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart.add",
		Description: "Move one unit of an item from stock into the cart.",
	}, s.cartAdd)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart.subtract",
		Description: "Move one unit of an item from the cart back into stock.",
	}, s.cartSubtract)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart.clear",
		Description: "Return every cart unit to stock.",
	}, s.cartClear)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart.info",
		Description: "Return the number of distinct items in the cart and the total price.",
	}, s.cartInfo)

	server.AddResource(&mcp.Resource{
		Name:        "catalog_items",
		Description: "The current catalog as a JSON array.",
		URI:         "catalog://items",
		MIMEType:    "application/json",
	}, s.readItems)

	server.AddResource(&mcp.Resource{
		Name:        "catalog_cart",
		Description: "The current cart totals.",
		URI:         "catalog://cart",
		MIMEType:    "application/json",
	}, s.readCart)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "catalog_item",
		Description: "Read one catalog item by id.",
		URITemplate: "catalog://items/{id}",
		MIMEType:    "application/json",
	}, s.readItem)

	return s
}

func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

type EmptyInput struct{}

type ItemInput struct {
	ID            string  `json:"id" jsonschema:"unique item id"`
	Name          string  `json:"name,omitempty" jsonschema:"display name"`
	Photo         string  `json:"photo,omitempty" jsonschema:"optional photo URL"`
	Price         float64 `json:"price,omitempty" jsonschema:"unit price, not negative"`
	ServingSize   string  `json:"servingSize,omitempty" jsonschema:"serving size label"`
	AmountInStock int     `json:"amountInStock,omitempty" jsonschema:"units in stock"`
	AmountInCart  int     `json:"amountInCart,omitempty" jsonschema:"units in the cart"`
}

func (in ItemInput) item() catalog.Item {
	return catalog.Item{
		ID:            strings.TrimSpace(in.ID),
		Name:          in.Name,
		Photo:         catalog.Photo(in.Photo),
		Price:         in.Price,
		ServingSize:   in.ServingSize,
		AmountInStock: in.AmountInStock,
		AmountInCart:  in.AmountInCart,
	}
}

type IDInput struct {
	ID string `json:"id" jsonschema:"item id"`
}

type ListOutput struct {
	Items []catalog.Item `json:"items"`
	Cart  cart.Info      `json:"cart"`
}

type ItemOutput struct {
	Item catalog.Item `json:"item"`
	Cart cart.Info    `json:"cart"`
}

type CartOutput struct {
	Cart cart.Info `json:"cart"`
}

func (s *Server) list(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, ListOutput, error) {
	return nil, ListOutput{Items: s.catalog.Items().Items(), Cart: s.catalog.CartInfo()}, nil
}

func (s *Server) upsert(ctx context.Context, _ *mcp.CallToolRequest, input ItemInput) (*mcp.CallToolResult, ItemOutput, error) {
	it := input.item()
	if err := s.catalog.AddItem(it); err != nil {
		return nil, ItemOutput{}, err
	}
	return nil, s.itemOutput(it.ID), nil
}

func (s *Server) update(ctx context.Context, _ *mcp.CallToolRequest, input ItemInput) (*mcp.CallToolResult, ItemOutput, error) {
	it := input.item()
	if err := s.catalog.UpdateItem(it); err != nil {
		return nil, ItemOutput{}, err
	}
	return nil, s.itemOutput(it.ID), nil
}

func (s *Server) remove(ctx context.Context, _ *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, CartOutput, error) {
	if err := s.catalog.RemoveItem(strings.TrimSpace(input.ID)); err != nil {
		return nil, CartOutput{}, err
	}
	return nil, CartOutput{Cart: s.catalog.CartInfo()}, nil
}

func (s *Server) cartAdd(ctx context.Context, _ *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, ItemOutput, error) {
	id := strings.TrimSpace(input.ID)
	if err := s.catalog.AddToCart(id); err != nil {
		var stock *catalog.InsufficientStockError
		if errors.As(err, &stock) {
			return nil, ItemOutput{}, fmt.Errorf("item %q is out of stock", stock.ID)
		}
		return nil, ItemOutput{}, err
	}
	return nil, s.itemOutput(id), nil
}

func (s *Server) cartSubtract(ctx context.Context, _ *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, ItemOutput, error) {
	id := strings.TrimSpace(input.ID)
	if err := s.catalog.SubtractFromCart(id); err != nil {
		return nil, ItemOutput{}, err
	}
	return nil, s.itemOutput(id), nil
}

func (s *Server) cartClear(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, CartOutput, error) {
	if err := s.catalog.ClearCart(); err != nil {
		return nil, CartOutput{}, err
	}
	return nil, CartOutput{Cart: s.catalog.CartInfo()}, nil
}

func (s *Server) cartInfo(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, CartOutput, error) {
	return nil, CartOutput{Cart: s.catalog.CartInfo()}, nil
}

// itemOutput reports the item as currently visible; with a publish delay
// the command may not have landed yet.
func (s *Server) itemOutput(id string) ItemOutput {
	it, _ := s.catalog.Items().Get(id)
	return ItemOutput{Item: it, Cart: s.catalog.CartInfo()}
}

func (s *Server) readItems(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if req == nil || req.Params == nil {
		return nil, errors.New("missing resource params")
	}
	return jsonResource(req.Params.URI, s.catalog.Items())
}

func (s *Server) readCart(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if req == nil || req.Params == nil {
		return nil, errors.New("missing resource params")
	}
	return jsonResource(req.Params.URI, s.catalog.CartInfo())
}

func (s *Server) readItem(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if req == nil || req.Params == nil {
		return nil, errors.New("missing resource params")
	}
	u, err := url.Parse(req.Params.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid resource URI: %w", err)
	}
	if u.Scheme != "catalog" || u.Host != "items" {
		return nil, fmt.Errorf("unsupported resource URI: %s", req.Params.URI)
	}
	id, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/"))
	if err != nil || id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	it, ok := s.catalog.Items().Get(id)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResource(req.Params.URI, it)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
