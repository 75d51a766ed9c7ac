package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/tabcart/internal/cart"
	"github.com/adityalohuni/tabcart/internal/slot"
	"github.com/adityalohuni/tabcart/internal/tab"
)

var testImpl = &mcp.Implementation{Name: "tabcart-test", Version: "0.1.0"}

func mcpSession(t *testing.T) (*tab.Tab, *mcp.ClientSession) {
	t.Helper()
	hub := slot.NewHub(slot.HubOptions{})
	t.Cleanup(hub.Close)
	tb := tab.New(hub.Open(), tab.Options{})
	require.NoError(t, tb.Open(context.Background()))
	t.Cleanup(tb.Close)

	srv := New(tb, Options{Implementation: testImpl})
	serverT, clientT := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return tb, session
}

func call(t *testing.T, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func TestCartFlow(t *testing.T) {
	tb, session := mcpSession(t)

	res := call(t, session, "catalog.upsert", map[string]any{
		"id": "1", "name": "Latte", "price": 2.0, "servingSize": "300ml", "amountInStock": 5,
	})
	require.False(t, res.IsError, text(t, res))

	for i := 0; i < 3; i++ {
		res = call(t, session, "cart.add", map[string]any{"id": "1"})
		require.False(t, res.IsError, text(t, res))
	}

	var out ItemOutput
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.Equal(t, 2, out.Item.AmountInStock)
	assert.Equal(t, 3, out.Item.AmountInCart)
	assert.Equal(t, cart.Info{CartSize: 1, TotalPrice: 6}, out.Cart)

	res = call(t, session, "cart.clear", map[string]any{})
	require.False(t, res.IsError)
	assert.Equal(t, cart.Info{}, tb.CartInfo())
}

func TestOutOfStockIsToolError(t *testing.T) {
	_, session := mcpSession(t)
	call(t, session, "catalog.upsert", map[string]any{"id": "x", "name": "Scone"})

	res := call(t, session, "cart.add", map[string]any{"id": "x"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "out of stock")

	res = call(t, session, "catalog.update", map[string]any{"id": "nope"})
	assert.True(t, res.IsError)
}

func TestListAndResources(t *testing.T) {
	tb, session := mcpSession(t)
	call(t, session, "catalog.upsert", map[string]any{"id": "a", "name": "A", "price": 1.5, "amountInStock": 1})
	call(t, session, "catalog.upsert", map[string]any{"id": "b", "name": "B", "price": 1, "amountInStock": 1})
	call(t, session, "catalog.remove", map[string]any{"id": "b"})

	var list ListOutput
	require.NoError(t, json.Unmarshal([]byte(text(t, call(t, session, "catalog.list", map[string]any{}))), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "a", list.Items[0].ID)

	ctx := context.Background()
	rr, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "catalog://items/a"})
	require.NoError(t, err)
	require.Len(t, rr.Contents, 1)
	assert.Contains(t, rr.Contents[0].Text, `"name": "A"`)

	_, err = session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "catalog://items/missing"})
	assert.Error(t, err)

	require.NoError(t, tb.AddToCart("a"))
	rr, err = session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "catalog://cart"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cartSize":1,"totalPrice":1.5}`, rr.Contents[0].Text)
}
