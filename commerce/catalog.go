package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vitwit/bando/metrics"
	"github.com/vitwit/bando/types"
	"github.com/vitwit/bando/utils"
)

// ProductQuery filters GET /products/grouped/.
type ProductQuery struct {
	Country    string
	Type       string
	Brand      string
	PageSize   int
	PageNumber int
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	if q.Country != "" {
		v.Set("country", q.Country)
	}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	if q.Brand != "" {
		v.Set("brand", q.Brand)
	}
	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.PageNumber > 0 {
		v.Set("pageNumber", strconv.Itoa(q.PageNumber))
	}
	return v
}

// Countries lists the countries products are sold in.
func (c *Client) Countries(ctx context.Context) ([]types.Country, error) {
	var resp struct {
		Data struct {
			Results []types.Country `json:"results"`
		} `json:"data"`
	}
	if err := c.getCatalog(ctx, "/countries/", &resp); err != nil {
		return nil, err
	}
	return resp.Data.Results, nil
}

// Products lists product groups matching q.
func (c *Client) Products(ctx context.Context, q ProductQuery) ([]types.ProductGroup, error) {
	path := "/products/grouped/"
	if v := q.values(); len(v) > 0 {
		path += "?" + v.Encode()
	}

	var resp struct {
		Products []types.ProductGroup `json:"products"`
	}
	if err := c.getCatalog(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

// Networks lists the networks the API can settle on.
func (c *Client) Networks(ctx context.Context) ([]types.CatalogNetwork, error) {
	var resp struct {
		Data []types.CatalogNetwork `json:"data"`
	}
	if err := c.getCatalog(ctx, "/networks/", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Tokens lists the tokens accepted on a network.
func (c *Client) Tokens(ctx context.Context, networkKey string) ([]types.Token, error) {
	var resp struct {
		Data []types.Token `json:"data"`
	}
	if err := c.getCatalog(ctx, "/tokens/"+url.PathEscape(networkKey), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// getCatalog fetches a catalog path, serving it from cache while fresh.
// Requests that reach the network wait on the limiter first.
func (c *Client) getCatalog(ctx context.Context, path string, out any) error {
	endpoint := c.baseURL + path

	if c.cache != nil {
		if cached, ok := c.cache.Get(endpoint); ok {
			c.metrics.IncCounter(metrics.EventCatalogCacheHit, nil)
			c.logger.Debug("catalog cache hit", map[string]any{"url": endpoint})
			return c.decodeCatalog(path, cached.([]byte), out)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return types.NewError(types.ErrCatalog, types.StageCatalog, "rate limit wait aborted", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.NewError(types.ErrCatalog, types.StageCatalog, "invalid catalog request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	c.logger.Debug("catalog request", map[string]any{"url": endpoint})
	status, body, err := c.do(req)
	if err != nil {
		return types.NewError(types.ErrCatalog, types.StageCatalog, "catalog request failed", err)
	}
	if status < 200 || status > 299 {
		return types.NewError(types.ErrCatalog, types.StageCatalog,
			fmt.Sprintf("%s returned status %d: %s", path, status, utils.APIMessage(body)), nil)
	}

	if err := c.decodeCatalog(path, body, out); err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.SetDefault(endpoint, body)
	}
	return nil
}

func (c *Client) decodeCatalog(path string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return types.NewError(types.ErrCatalog, types.StageCatalog, fmt.Sprintf("undecodable %s response", path), err)
	}
	return nil
}
