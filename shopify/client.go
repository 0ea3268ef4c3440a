package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"kimland-sync/internal/types"
	"kimland-sync/inventory"
	"kimland-sync/utils"
)

const (
	defaultAPIVersion = "2024-01"
	defaultPageSize   = 250
)

// Config holds the Admin API connection settings
type Config struct {
	Shop        string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
	PageSize    int

	// BaseURL replaces https://<shop>.myshopify.com, mostly for tests
	BaseURL string
}

// Client is a Shopify Admin REST client implementing types.CatalogClient
type Client struct {
	client   *resty.Client
	config   Config
	logger   types.Logger
	executor *inventory.UpdateExecutor
}

type wireOption struct {
	Name string `json:"name"`
}

type wireProduct struct {
	ID       int64                `json:"id"`
	Title    string               `json:"title"`
	BodyHTML string               `json:"body_html"`
	Vendor   string               `json:"vendor"`
	Options  []wireOption         `json:"options"`
	Variants []types.LocalVariant `json:"variants"`
}

func (p wireProduct) toLocal() types.LocalProduct {
	product := types.LocalProduct{
		ID:       p.ID,
		Title:    p.Title,
		BodyHTML: p.BodyHTML,
		Vendor:   p.Vendor,
		Variants: p.Variants,
	}
	for _, o := range p.Options {
		product.Options = append(product.Options, o.Name)
	}
	return product
}

// NewClient creates an Admin API client
func NewClient(config Config, logger types.Logger) (*Client, error) {
	if config.AccessToken == "" {
		return nil, fmt.Errorf("shopify access token is required")
	}
	if config.BaseURL == "" {
		if config.Shop == "" {
			return nil, fmt.Errorf("shopify shop is required")
		}
		shop := config.Shop
		if !strings.Contains(shop, ".") {
			shop += ".myshopify.com"
		}
		config.BaseURL = "https://" + shop
	}
	if config.APIVersion == "" {
		config.APIVersion = defaultAPIVersion
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PageSize <= 0 {
		config.PageSize = defaultPageSize
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(config.BaseURL, "/") + "/admin/api/" + config.APIVersion)
	client.SetTimeout(config.Timeout)
	client.SetHeader("X-Shopify-Access-Token", config.AccessToken)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("Content-Type", "application/json")

	utils.InstrumentResty(client, "kimland-sync/shopify")

	c := &Client{
		client: client,
		config: config,
		logger: logger,
	}
	c.executor = inventory.NewUpdateExecutor(c, logger)
	return c, nil
}

// GetProduct returns one product with its variants
func (c *Client) GetProduct(ctx context.Context, productID int64) (*types.LocalProduct, error) {
	var out struct {
		Product wireProduct `json:"product"`
	}
	res, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/products/%d.json", productID))
	if err := decode(res, err, &out); err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", productID, err)
	}

	product := out.Product.toLocal()
	return &product, nil
}

// GetAllProducts pages through the whole catalog by ascending id
func (c *Client) GetAllProducts(ctx context.Context) ([]types.LocalProduct, error) {
	var products []types.LocalProduct
	var sinceID int64

	for {
		var out struct {
			Products []wireProduct `json:"products"`
		}
		res, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":    strconv.Itoa(c.config.PageSize),
				"since_id": strconv.FormatInt(sinceID, 10),
			}).
			Get("/products.json")
		if err := decode(res, err, &out); err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}

		for _, p := range out.Products {
			products = append(products, p.toLocal())
			if p.ID > sinceID {
				sinceID = p.ID
			}
		}
		c.logger.Debugf("Fetched %d products (total %d)", len(out.Products), len(products))

		if len(out.Products) < c.config.PageSize {
			return products, nil
		}
	}
}

// UpdateVariantSKU rewrites a variant SKU
func (c *Client) UpdateVariantSKU(ctx context.Context, variantID int64, sku string) error {
	body := map[string]any{
		"variant": map[string]any{"id": variantID, "sku": sku},
	}
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Put(fmt.Sprintf("/variants/%d.json", variantID))
	if err := decode(res, err, nil); err != nil {
		return fmt.Errorf("failed to update sku of variant %d: %w", variantID, err)
	}
	return nil
}

// UpdateInventory sets the available quantity of a variant
func (c *Client) UpdateInventory(ctx context.Context, variantID int64, quantity int) types.InventoryUpdate {
	return c.executor.Update(ctx, variantID, quantity)
}

// ListLocations returns the stock locations, with the shop's primary location flagged
func (c *Client) ListLocations(ctx context.Context) ([]types.Location, error) {
	var out struct {
		Locations []types.Location `json:"locations"`
	}
	res, err := c.client.R().
		SetContext(ctx).
		Get("/locations.json")
	if err := decode(res, err, &out); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}

	var shop struct {
		Shop struct {
			PrimaryLocationID int64 `json:"primary_location_id"`
		} `json:"shop"`
	}
	res, err = c.client.R().
		SetContext(ctx).
		Get("/shop.json")
	if err := decode(res, err, &shop); err != nil {
		c.logger.Debugf("Could not read primary location: %v", err)
	}
	for i := range out.Locations {
		out.Locations[i].Primary = out.Locations[i].ID == shop.Shop.PrimaryLocationID
	}
	return out.Locations, nil
}

// InventoryItemID returns the inventory item behind a variant
func (c *Client) InventoryItemID(ctx context.Context, variantID int64) (int64, error) {
	var out struct {
		Variant types.LocalVariant `json:"variant"`
	}
	res, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/variants/%d.json", variantID))
	if err := decode(res, err, &out); err != nil {
		return 0, fmt.Errorf("failed to get variant %d: %w", variantID, err)
	}
	if out.Variant.InventoryItemID == 0 {
		return 0, fmt.Errorf("%w: variant %d has no inventory item", types.ErrUpdateFailure, variantID)
	}
	return out.Variant.InventoryItemID, nil
}

// SetInventoryLevel sets the available quantity of an item at a location
func (c *Client) SetInventoryLevel(ctx context.Context, inventoryItemID, locationID int64, quantity int) error {
	body := map[string]any{
		"location_id":       locationID,
		"inventory_item_id": inventoryItemID,
		"available":         quantity,
	}
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/inventory_levels/set.json")
	return decode(res, err, nil)
}

// SetVariantInventoryQuantity writes the quantity on the variant, the pre-locations way
func (c *Client) SetVariantInventoryQuantity(ctx context.Context, variantID int64, quantity int) error {
	body := map[string]any{
		"variant": map[string]any{"id": variantID, "inventory_quantity": quantity},
	}
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Put(fmt.Sprintf("/variants/%d.json", variantID))
	return decode(res, err, nil)
}

// decode maps transport and status failures to the pipeline's errors and unmarshals the body
// into out when it is non-nil
func decode(res *resty.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	body := res.Body()
	if status := res.StatusCode(); status < 200 || status > 299 {
		switch {
		case status == http.StatusForbidden, strings.Contains(string(body), "read_locations"):
			return fmt.Errorf("%w: %s", types.ErrPermissionDenied, snippet(body))
		case status == http.StatusNotFound:
			return fmt.Errorf("%w: %s", types.ErrNotFound, snippet(body))
		}
		return fmt.Errorf("unexpected status code: %d: %s", status, snippet(body))
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
