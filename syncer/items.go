package syncer

import (
	"context"
	"fmt"
	"os"

	"github.com/titanous/json5"

	"kimland-sync/internal/types"
	"kimland-sync/utils"
)

// CatalogItems builds one batch item per catalog product whose description or title carries a reference
func CatalogItems(ctx context.Context, catalog types.CatalogClient, logger types.Logger) ([]types.BatchItem, error) {
	products, err := catalog.GetAllProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog products: %w", err)
	}

	items := make([]types.BatchItem, 0, len(products))
	for _, p := range products {
		ref := utils.ExtractReference(p.BodyHTML, p.Title)
		if ref == "" {
			logger.Debugf("No reference for product %d (%s), skipping", p.ID, p.Title)
			continue
		}
		items = append(items, types.BatchItem{Identifier: ref, LocalProductID: p.ID, DisplayName: p.Title})
	}
	logger.Infof("%d of %d catalog products have a reference", len(items), len(products))
	return items, nil
}

// LoadItems reads a JSON5 array of batch items
func LoadItems(path string) ([]types.BatchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []types.BatchItem
	if err := json5.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i, item := range items {
		if item.Identifier == "" || item.LocalProductID == 0 {
			return nil, fmt.Errorf("item %d of %s needs sku and product_id", i, path)
		}
	}
	return items, nil
}
