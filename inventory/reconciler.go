package inventory

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"kimland-sync/internal/types"
	"kimland-sync/utils"
)

var tracer = otel.Tracer("kimland-sync/inventory")

// Reconciler applies remote size/stock lines to the local variants of one product
type Reconciler struct {
	logger types.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(logger types.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconcile matches every remote size line to at most one local variant and writes the
// differing quantities through catalog. Local variants missing from the remote size list are
// zeroed, unless the remote list is empty.
func (r *Reconciler) Reconcile(ctx context.Context, catalog types.CatalogClient, local *types.LocalProduct, remote *types.RemoteProduct) types.UpdateResult {
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()

	var result types.UpdateResult
	if local == nil || remote == nil {
		return result
	}

	r.correctSKUs(ctx, catalog, local)

	column := DetectSizeColumn(local)
	r.logger.Debugf("Product %d: sizes read from option%d", local.ID, column)

	remoteSizes := make(map[string]bool, len(remote.Variants))
	for _, rv := range remote.Variants {
		remoteSizes[strings.ToLower(NormalizeSize(rv.Size))] = true
	}

	processed := make([]bool, len(local.Variants))
	apply := func(i int, quantity int) {
		variant := local.Variants[i]
		if variant.InventoryQuantity == quantity {
			return
		}
		update := catalog.UpdateInventory(ctx, variant.ID, quantity)
		if update.Success {
			result.Updates++
			r.logger.Infof("Variant %d (%s): %d -> %d via %s", variant.ID, variant.Option(column), variant.InventoryQuantity, quantity, update.Method)
			return
		}
		result.Errors++
		r.logger.Warnf("Variant %d (%s): update to %d failed: %v", variant.ID, variant.Option(column), quantity, update.Err)
	}

	for _, rv := range remote.Variants {
		if ctx.Err() != nil {
			return result
		}

		i := r.match(local, column, rv, processed)
		if i < 0 {
			r.logger.Debugf("No local variant for remote size %q", rv.Size)
			continue
		}
		processed[i] = true
		apply(i, rv.Stock)
	}

	if len(remote.Variants) == 0 {
		r.logger.Warnf("Product %d: remote listing has no size lines, leaving local quantities untouched", local.ID)
	} else {
		for i, variant := range local.Variants {
			if ctx.Err() != nil {
				return result
			}
			if processed[i] || variant.InventoryQuantity <= 0 {
				continue
			}
			if remoteSizes[strings.ToLower(NormalizeSize(variant.Option(column)))] {
				continue
			}
			r.logger.Infof("Variant %d (%s) is not offered remotely, setting it to 0", variant.ID, variant.Option(column))
			apply(i, 0)
		}
	}

	span.SetAttributes(
		attribute.Int("updates", result.Updates),
		attribute.Int("errors", result.Errors),
	)
	return result
}

// match returns the index of the local variant a remote line binds to, or -1.
// A single-size line binds to the first unprocessed variant.
func (r *Reconciler) match(local *types.LocalProduct, column int, rv types.RemoteVariant, processed []bool) int {
	sentinel := IsSentinelSize(rv.Size)
	size := NormalizeSize(rv.Size)

	for i, variant := range local.Variants {
		if processed[i] {
			continue
		}
		if sentinel || strings.EqualFold(NormalizeSize(variant.Option(column)), size) {
			return i
		}
	}
	return -1
}

// correctSKUs rewrites variant SKUs that differ from the reference found in the product text.
// Failures are logged and do not stop the reconciliation.
func (r *Reconciler) correctSKUs(ctx context.Context, catalog types.CatalogClient, local *types.LocalProduct) {
	reference := utils.ExtractReference(local.BodyHTML, local.Title)
	if reference == "" {
		return
	}

	for i, variant := range local.Variants {
		if strings.EqualFold(variant.SKU, reference) {
			continue
		}
		if err := catalog.UpdateVariantSKU(ctx, variant.ID, reference); err != nil {
			r.logger.Warnf("Failed to correct SKU of variant %d (%q -> %q): %v", variant.ID, variant.SKU, reference, err)
			continue
		}
		r.logger.Infof("Corrected SKU of variant %d: %q -> %q", variant.ID, variant.SKU, reference)
		local.Variants[i].SKU = reference
	}
}
