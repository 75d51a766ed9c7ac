package adminclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/adityalohuni/tabcart/internal/admin"
	"github.com/adityalohuni/tabcart/internal/session"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *Client) Status(ctx context.Context) (admin.Status, error) {
	var out admin.Status
	err := c.get(ctx, "/admin/status", &out)
	return out, err
}

func (c *Client) ListTabs(ctx context.Context) ([]session.TabInfo, error) {
	var out []session.TabInfo
	if err := c.get(ctx, "/admin/tabs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Catalog(ctx context.Context) (admin.CatalogView, error) {
	var out admin.CatalogView
	err := c.get(ctx, "/admin/catalog", &out)
	return out, err
}

func (c *Client) DisconnectTab(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/admin/tabs/disconnect?id="+url.QueryEscape(id))
	if err != nil {
		return err
	}
	return c.doNoBody(req)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return requestError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

func (c *Client) doNoBody(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return requestError(resp)
	}
	return nil
}

func requestError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("admin request failed: %s: %s", resp.Status, msg)
	}
	return fmt.Errorf("admin request failed: %s", resp.Status)
}
