package shopify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimland-sync/internal/types"
)

const apiPrefix = "/admin/api/2024-01"

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

type fakeShopify struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
	token    string
}

func (f *fakeShopify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		json.Unmarshal(raw, &body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{r.Method, r.URL.Path, body})
	f.token = r.Header.Get("X-Shopify-Access-Token")
	route, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	route(w, r)
}

func (f *fakeShopify) find(method, path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.method == method && r.path == apiPrefix+path {
			out = append(out, r)
		}
	}
	return out
}

func respond(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeShopify) {
	t.Helper()
	prefixed := make(map[string]func(w http.ResponseWriter, r *http.Request), len(routes))
	for key, route := range routes {
		var method, path string
		for i := range key {
			if key[i] == ' ' {
				method, path = key[:i], key[i+1:]
				break
			}
		}
		prefixed[method+" "+apiPrefix+path] = route
	}

	fake := &fakeShopify{routes: prefixed}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{AccessToken: "shpat_test", BaseURL: server.URL, PageSize: 2}, logrus.New())
	require.NoError(t, err)
	return client, fake
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{Shop: "kimland"}, logrus.New())
	assert.Error(t, err)

	_, err = NewClient(Config{AccessToken: "x"}, logrus.New())
	assert.Error(t, err)

	client, err := NewClient(Config{Shop: "kimland", AccessToken: "x"}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, "https://kimland.myshopify.com", client.config.BaseURL)
	assert.Equal(t, defaultAPIVersion, client.config.APIVersion)
}

func TestGetProduct(t *testing.T) {
	client, fake := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /products/42.json": respond(`{"product":{"id":42,"title":"Nike Air Max","body_html":"<p>Réf : CD6109-200</p>",
			"options":[{"name":"Couleur"},{"name":"Pointure"}],
			"variants":[{"id":1,"product_id":42,"sku":"CD6109-200","option1":"Noir","option2":"41","inventory_quantity":3,"inventory_item_id":100}]}}`),
	})

	product, err := client.GetProduct(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, int64(42), product.ID)
	assert.Equal(t, []string{"Couleur", "Pointure"}, product.Options)
	require.Len(t, product.Variants, 1)
	assert.Equal(t, "41", product.Variants[0].Option2)
	assert.Equal(t, 3, product.Variants[0].InventoryQuantity)
	assert.Equal(t, int64(100), product.Variants[0].InventoryItemID)
	assert.Equal(t, "shpat_test", fake.token)
}

func TestGetProduct_NotFound(t *testing.T) {
	client, _ := newTestClient(t, nil)

	_, err := client.GetProduct(context.Background(), 7)

	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestGetAllProducts_Paginates(t *testing.T) {
	var sinceIDs []string
	client, _ := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /products.json": func(w http.ResponseWriter, r *http.Request) {
			since := r.URL.Query().Get("since_id")
			sinceIDs = append(sinceIDs, since)
			switch since {
			case "0":
				w.Write([]byte(`{"products":[{"id":1,"title":"a"},{"id":2,"title":"b"}]}`))
			case "2":
				w.Write([]byte(`{"products":[{"id":3,"title":"c"}]}`))
			default:
				w.Write([]byte(`{"products":[]}`))
			}
		},
	})

	products, err := client.GetAllProducts(context.Background())

	require.NoError(t, err)
	assert.Len(t, products, 3)
	assert.Equal(t, []string{"0", "2"}, sinceIDs)
}

func TestUpdateVariantSKU(t *testing.T) {
	client, fake := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"PUT /variants/5.json": respond(`{"variant":{"id":5}}`),
	})

	err := client.UpdateVariantSKU(context.Background(), 5, "CD6109-200")

	require.NoError(t, err)
	requests := fake.find("PUT", "/variants/5.json")
	require.Len(t, requests, 1)
	variant := requests[0].body["variant"].(map[string]any)
	assert.Equal(t, "CD6109-200", variant["sku"])
}

func TestUpdateInventory_Modern(t *testing.T) {
	client, fake := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /variants/5.json":          respond(`{"variant":{"id":5,"inventory_item_id":500}}`),
		"GET /locations.json":           respond(`{"locations":[{"id":1,"name":"Dépôt","active":true},{"id":2,"name":"Boutique","active":true}]}`),
		"GET /shop.json":                respond(`{"shop":{"primary_location_id":2}}`),
		"POST /inventory_levels/set.json": respond(`{"inventory_level":{}}`),
	})

	result := client.UpdateInventory(context.Background(), 5, 8)

	assert.Equal(t, types.InventoryUpdate{Success: true, Method: types.MethodModern}, result)
	requests := fake.find("POST", "/inventory_levels/set.json")
	require.Len(t, requests, 1)
	assert.Equal(t, float64(2), requests[0].body["location_id"])
	assert.Equal(t, float64(500), requests[0].body["inventory_item_id"])
	assert.Equal(t, float64(8), requests[0].body["available"])
}

func TestUpdateInventory_PermissionFallsBackToLegacy(t *testing.T) {
	client, fake := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /variants/5.json": respond(`{"variant":{"id":5,"inventory_item_id":500}}`),
		"GET /locations.json": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"errors":"This action requires merchant approval for read_locations scope."}`))
		},
		"PUT /variants/5.json": respond(`{"variant":{"id":5}}`),
	})

	result := client.UpdateInventory(context.Background(), 5, 8)

	assert.True(t, result.Success)
	assert.Equal(t, types.MethodLegacy, result.Method)
	requests := fake.find("PUT", "/variants/5.json")
	require.Len(t, requests, 1)
	variant := requests[0].body["variant"].(map[string]any)
	assert.Equal(t, float64(8), variant["inventory_quantity"])
}

func TestUpdateInventory_ServerErrorNotRetriedAsLegacy(t *testing.T) {
	client, fake := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /variants/5.json": respond(`{"variant":{"id":5,"inventory_item_id":500}}`),
		"GET /locations.json":  respond(`{"locations":[{"id":1,"active":true}]}`),
		"GET /shop.json":       respond(`{"shop":{"primary_location_id":1}}`),
		"POST /inventory_levels/set.json": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"errors":["Inventory item does not have inventory tracking enabled"]}`))
		},
	})

	result := client.UpdateInventory(context.Background(), 5, 8)

	assert.False(t, result.Success)
	assert.Equal(t, types.MethodModern, result.Method)
	assert.Contains(t, result.Err.Error(), strconv.Itoa(http.StatusUnprocessableEntity))
	assert.Empty(t, fake.find("PUT", "/variants/5.json"))
}

func TestListLocations_PrimaryFlag(t *testing.T) {
	client, _ := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /locations.json": respond(`{"locations":[{"id":1,"name":"A","active":true},{"id":2,"name":"B","active":true}]}`),
		"GET /shop.json":      respond(`{"shop":{"primary_location_id":2}}`),
	})

	locations, err := client.ListLocations(context.Background())

	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.False(t, locations[0].Primary)
	assert.True(t, locations[1].Primary)
}
