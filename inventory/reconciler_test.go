package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimland-sync/internal/types"
)

type fakeCatalog struct {
	mu        sync.Mutex
	writes    map[int64]int
	order     []int64
	skus      map[int64]string
	failing   map[int64]bool
	skuErr    error
	locations []types.Location
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		writes:  make(map[int64]int),
		skus:    make(map[int64]string),
		failing: make(map[int64]bool),
	}
}

func (f *fakeCatalog) GetProduct(ctx context.Context, productID int64) (*types.LocalProduct, error) {
	return nil, types.ErrNotFound
}

func (f *fakeCatalog) GetAllProducts(ctx context.Context) ([]types.LocalProduct, error) {
	return nil, nil
}

func (f *fakeCatalog) UpdateVariantSKU(ctx context.Context, variantID int64, sku string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.skuErr != nil {
		return f.skuErr
	}
	f.skus[variantID] = sku
	return nil
}

func (f *fakeCatalog) UpdateInventory(ctx context.Context, variantID int64, quantity int) types.InventoryUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[variantID] {
		return types.InventoryUpdate{Success: false, Method: types.MethodModern, Err: types.ErrUpdateFailure}
	}
	f.writes[variantID] = quantity
	f.order = append(f.order, variantID)
	return types.InventoryUpdate{Success: true, Method: types.MethodModern}
}

func (f *fakeCatalog) ListLocations(ctx context.Context) ([]types.Location, error) {
	return f.locations, nil
}

func variant(id int64, size string, qty int) types.LocalVariant {
	return types.LocalVariant{ID: id, ProductID: 1, SKU: "CD6109-200", Option1: size, InventoryQuantity: qty}
}

func product(variants ...types.LocalVariant) *types.LocalProduct {
	return &types.LocalProduct{
		ID:       1,
		Title:    "Nike Air Max",
		BodyHTML: "<p>Réf : CD6109-200</p>",
		Options:  []string{"Pointure"},
		Variants: variants,
	}
}

func remote(variants ...types.RemoteVariant) *types.RemoteProduct {
	return &types.RemoteProduct{ID: "11", Name: "NIKE AIR MAX CD6109-200", Variants: variants}
}

func newTestReconciler() *Reconciler {
	return NewReconciler(logrus.New())
}

func TestReconcile_RoundTrip(t *testing.T) {
	catalog := newFakeCatalog()
	local := product(variant(1, "41", 0), variant(2, "42", 5), variant(3, "43", 1))

	result := newTestReconciler().Reconcile(context.Background(), catalog, local,
		remote(types.RemoteVariant{Size: "41", Stock: 3}, types.RemoteVariant{Size: "42", Stock: 5}, types.RemoteVariant{Size: "43", Stock: 0}))

	assert.Equal(t, types.UpdateResult{Updates: 2}, result)
	assert.Equal(t, map[int64]int{1: 3, 3: 0}, catalog.writes)
}

func TestReconcile_NormalizesRemoteLabels(t *testing.T) {
	catalog := newFakeCatalog()
	local := product(variant(1, "41", 0), variant(2, "42.5", 0), variant(3, "XL", 0))

	result := newTestReconciler().Reconcile(context.Background(), catalog, local,
		remote(types.RemoteVariant{Size: "EU 41", Stock: 1}, types.RemoteVariant{Size: "42,5", Stock: 2}, types.RemoteVariant{Size: "xl", Stock: 3}))

	assert.Equal(t, 3, result.Updates)
	assert.Equal(t, map[int64]int{1: 1, 2: 2, 3: 3}, catalog.writes)
}

func TestReconcile_NoDoubleMatch(t *testing.T) {
	catalog := newFakeCatalog()
	local := product(variant(1, "41", 0), variant(2, "42", 0))

	result := newTestReconciler().Reconcile(context.Background(), catalog, local,
		remote(types.RemoteVariant{Size: "41", Stock: 2}, types.RemoteVariant{Size: "41", Stock: 4}, types.RemoteVariant{Size: "42", Stock: 1}))

	assert.Equal(t, 2, result.Updates)
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, catalog.writes)
	assert.Equal(t, []int64{1, 2}, catalog.order)
}

func TestReconcile_DuplicateLocalSizesBoundOnce(t *testing.T) {
	catalog := newFakeCatalog()
	local := product(variant(1, "41", 0), variant(2, "41", 0))

	newTestReconciler().Reconcile(context.Background(), catalog, local,
		remote(types.RemoteVariant{Size: "41", Stock: 2}, types.RemoteVariant{Size: "41", Stock: 4}))

	assert.Equal(t, map[int64]int{1: 2, 2: 4}, catalog.writes)
}

func TestReconcile_ZeroesSizesMissingRemotely(t *testing.T) {
	catalog := newFakeCatalog()
	local := product(variant(1, "40", 3), variant(2, "41", 2), variant(3, "42", 0))

	result := newTestReconciler().Reconcile(context.Background(), catalog, local,
		remote(types.RemoteVariant{Size: "41", Stock: 2}))

	assert.Equal(t, types.UpdateResult{Updates: 1}, result)
	assert.Equal(t, map[int64]int{1: 0}, catalog.writes)
}

func TestReconcile_EmptyRemoteLeavesLocalUntouched(t *testing.T) {
	catalog := newFakeCatalog()
	local := product(variant(1, "40", 3), variant(2, "41", 2))

	result := newTestReconciler().Reconcile(context.Background(), catalog, local, remote())

	assert.Equal(t, types.UpdateResult{}, result)
	assert.Empty(t, catalog.writes)
}

func TestReconcile_SentinelBindsFirstVariant(t *testing.T) {
	catalog := newFakeCatalog()
	local := product(variant(1, "Default Title", 2))

	result := newTestReconciler().Reconcile(context.Background(), catalog, local,
		remote(types.RemoteVariant{Size: "Standard", Stock: 7}))

	assert.Equal(t, 1, result.Updates)
	assert.Equal(t, map[int64]int{1: 7}, catalog.writes)
}

func TestReconcile_ColorColumn(t *testing.T) {
	catalog := newFakeCatalog()
	local := &types.LocalProduct{
		ID:      1,
		Options: []string{"Couleur", "Pointure"},
		Variants: []types.LocalVariant{
			{ID: 1, Option1: "Noir", Option2: "41", InventoryQuantity: 0},
			{ID: 2, Option1: "Noir", Option2: "42", InventoryQuantity: 0},
		},
	}

	result := newTestReconciler().Reconcile(context.Background(), catalog, local,
		remote(types.RemoteVariant{Size: "42", Stock: 4}, types.RemoteVariant{Size: "41", Stock: 1}))

	assert.Equal(t, 2, result.Updates)
	assert.Equal(t, map[int64]int{1: 1, 2: 4}, catalog.writes)
}

func TestReconcile_CountsFailedWrites(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.failing[2] = true
	local := product(variant(1, "41", 0), variant(2, "42", 0))

	result := newTestReconciler().Reconcile(context.Background(), catalog, local,
		remote(types.RemoteVariant{Size: "41", Stock: 1}, types.RemoteVariant{Size: "42", Stock: 1}))

	assert.Equal(t, types.UpdateResult{Updates: 1, Errors: 1}, result)
}

func TestReconcile_CorrectsSKUs(t *testing.T) {
	catalog := newFakeCatalog()
	local := product(variant(1, "41", 0), types.LocalVariant{ID: 2, SKU: "OLD-SKU", Option1: "42"})

	newTestReconciler().Reconcile(context.Background(), catalog, local, remote(types.RemoteVariant{Size: "41", Stock: 0}))

	assert.Equal(t, map[int64]string{2: "CD6109-200"}, catalog.skus)
	assert.Equal(t, "CD6109-200", local.Variants[1].SKU)
}

func TestReconcile_SKUFailureIsNotFatal(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.skuErr = errors.New("boom")
	local := product(types.LocalVariant{ID: 1, SKU: "OLD", Option1: "41"})

	result := newTestReconciler().Reconcile(context.Background(), catalog, local, remote(types.RemoteVariant{Size: "41", Stock: 2}))

	assert.Equal(t, 1, result.Updates)
	assert.Equal(t, "OLD", local.Variants[0].SKU)
}

func TestReconcile_NilInputs(t *testing.T) {
	catalog := newFakeCatalog()

	assert.Equal(t, types.UpdateResult{}, newTestReconciler().Reconcile(context.Background(), catalog, nil, remote()))
	assert.Equal(t, types.UpdateResult{}, newTestReconciler().Reconcile(context.Background(), catalog, product(), nil))
}

func TestNormalizeSize(t *testing.T) {
	tests := map[string]string{
		"41":        "41",
		" 41 ":      "41",
		"EU 41":     "41",
		"41 EU":     "41",
		"Taille: M": "M",
		"41,5":      "41.5",
		"42.0":      "42",
		"40 2/3":    "40 2/3",
		"small":     "S",
		"xxl":       "XXL",
		"2XL":       "XXL",
		"Standard":  "Standard",
		"36-37":     "36-37",
		"":          "",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, NormalizeSize(input), input)
	}
}

func TestNormalizeSize_RoundTrip(t *testing.T) {
	for _, size := range []string{"41", "42", "43", "M", "XL"} {
		assert.Equal(t, size, NormalizeSize(NormalizeSize(size)))
	}
}

func TestIsSentinelSize(t *testing.T) {
	for _, label := range []string{"Standard", "DIMENSION", "unique", "Taille  unique", "TU"} {
		assert.True(t, IsSentinelSize(label), label)
	}
	for _, label := range []string{"41", "M", "Standard 2"} {
		assert.False(t, IsSentinelSize(label), label)
	}
}

func TestIsColor(t *testing.T) {
	for _, value := range []string{"Noir", "noire", "Blanche", "Bleu marine", "black/white"} {
		assert.True(t, IsColor(value), value)
	}
	for _, value := range []string{"41", "XL", "Large", "Medium", "Standard"} {
		assert.False(t, IsColor(value), value)
	}
}

func TestDetectSizeColumn(t *testing.T) {
	named := &types.LocalProduct{Options: []string{"Couleur", "Taille"}}
	assert.Equal(t, 2, DetectSizeColumn(named))

	unnamed := &types.LocalProduct{
		Options: []string{"Option1", "Option2"},
		Variants: []types.LocalVariant{
			{Option1: "Noire", Option2: "41"},
			{Option1: "Blanche", Option2: "42"},
		},
	}
	assert.Equal(t, 2, DetectSizeColumn(unnamed))

	sizesFirst := &types.LocalProduct{
		Variants: []types.LocalVariant{{Option1: "41", Option2: "Rouge"}},
	}
	assert.Equal(t, 1, DetectSizeColumn(sizesFirst))

	require.Equal(t, 1, DetectSizeColumn(&types.LocalProduct{}))
}
