package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kimland-sync/internal/types"
)

// InventoryAPI is the set of catalog calls an UpdateExecutor composes
type InventoryAPI interface {
	// InventoryItemID returns the inventory item behind a variant
	InventoryItemID(ctx context.Context, variantID int64) (int64, error)

	// ListLocations returns the stock locations of the account
	ListLocations(ctx context.Context) ([]types.Location, error)

	// SetInventoryLevel sets the available quantity of an item at a location
	SetInventoryLevel(ctx context.Context, inventoryItemID, locationID int64, quantity int) error

	// SetVariantInventoryQuantity writes the quantity on the variant itself
	SetVariantInventoryQuantity(ctx context.Context, variantID int64, quantity int) error
}

// UpdateExecutor writes a variant quantity through the location-based path, falling back to
// the variant-level write when the account lacks the permissions for it
type UpdateExecutor struct {
	api    InventoryAPI
	logger types.Logger

	mu         sync.Mutex
	locationID int64
}

// NewUpdateExecutor creates an executor over api
func NewUpdateExecutor(api InventoryAPI, logger types.Logger) *UpdateExecutor {
	return &UpdateExecutor{
		api:    api,
		logger: logger,
	}
}

// Update sets the quantity of a variant. Only permission failures of the modern path trigger
// the legacy write; any other failure is reported as is.
func (e *UpdateExecutor) Update(ctx context.Context, variantID int64, quantity int) types.InventoryUpdate {
	err := e.updateModern(ctx, variantID, quantity)
	if err == nil {
		e.logger.Debugf("Variant %d set to %d (modern)", variantID, quantity)
		return types.InventoryUpdate{Success: true, Method: types.MethodModern}
	}
	if !errors.Is(err, types.ErrPermissionDenied) {
		e.logger.Warnf("Inventory update of variant %d failed: %v", variantID, err)
		return types.InventoryUpdate{Success: false, Method: types.MethodModern, Err: err}
	}

	e.logger.Warnf("Location-based update denied for variant %d, using variant quantity: %v", variantID, err)
	if err := e.api.SetVariantInventoryQuantity(ctx, variantID, quantity); err != nil {
		e.logger.Warnf("Legacy inventory update of variant %d failed: %v", variantID, err)
		return types.InventoryUpdate{Success: false, Method: types.MethodLegacy, Err: err}
	}

	e.logger.Debugf("Variant %d set to %d (legacy)", variantID, quantity)
	return types.InventoryUpdate{Success: true, Method: types.MethodLegacy}
}

func (e *UpdateExecutor) updateModern(ctx context.Context, variantID int64, quantity int) error {
	itemID, err := e.api.InventoryItemID(ctx, variantID)
	if err != nil {
		return fmt.Errorf("failed to get inventory item: %w", err)
	}

	locationID, err := e.primaryLocation(ctx)
	if err != nil {
		return err
	}

	if err := e.api.SetInventoryLevel(ctx, itemID, locationID, quantity); err != nil {
		return fmt.Errorf("failed to set inventory level: %w", err)
	}
	return nil
}

// primaryLocation picks the primary active location, else the first active one, else the
// first one. The choice is cached for the executor's lifetime.
func (e *UpdateExecutor) primaryLocation(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locationID != 0 {
		return e.locationID, nil
	}

	locations, err := e.api.ListLocations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list locations: %w", err)
	}
	if len(locations) == 0 {
		return 0, fmt.Errorf("%w: no stock location", types.ErrUpdateFailure)
	}

	chosen := locations[0]
	for _, l := range locations {
		if l.Primary && l.Active {
			chosen = l
			break
		}
	}
	if !chosen.Primary || !chosen.Active {
		for _, l := range locations {
			if l.Active {
				chosen = l
				break
			}
		}
	}

	e.locationID = chosen.ID
	return e.locationID, nil
}
