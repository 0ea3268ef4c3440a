package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kimland-sync/internal/types"
	"kimland-sync/store"
)

var tracer = otel.Tracer("kimland-sync/syncer")

// Authenticator is the session side of the pipeline
type Authenticator interface {
	Authenticate(ctx context.Context, creds types.Credentials) bool
	IsLoggedIn() bool
}

// ProductLocator finds a product on the remote site
type ProductLocator interface {
	Locate(ctx context.Context, identifier, displayName string) (*types.RemoteProduct, error)
}

// InventoryReconciler applies remote stock to a local product
type InventoryReconciler interface {
	Reconcile(ctx context.Context, catalog types.CatalogClient, local *types.LocalProduct, remote *types.RemoteProduct) types.UpdateResult
}

// Orchestrator drives a product through authentication, location and reconciliation
type Orchestrator struct {
	config     *types.Config
	logger     types.Logger
	auth       Authenticator
	creds      types.Credentials
	locator    ProductLocator
	reconciler InventoryReconciler
	catalog    types.CatalogClient
	store      store.ResultStore
}

// NewOrchestrator creates an orchestrator. catalog is used by batches; single syncs name theirs.
func NewOrchestrator(
	config *types.Config,
	logger types.Logger,
	auth Authenticator,
	creds types.Credentials,
	locator ProductLocator,
	reconciler InventoryReconciler,
	catalog types.CatalogClient,
	results store.ResultStore,
) *Orchestrator {
	if results == nil {
		results = store.Discard{}
	}
	return &Orchestrator{
		config:     config,
		logger:     logger,
		auth:       auth,
		creds:      creds,
		locator:    locator,
		reconciler: reconciler,
		catalog:    catalog,
		store:      results,
	}
}

// SyncProductInventory synchronizes one product and records the result.
// Failures are reported in the result status, never as a panic or error return.
func (o *Orchestrator) SyncProductInventory(ctx context.Context, identifier string, localProductID int64, catalog types.CatalogClient, displayName string) types.SyncResult {
	return o.syncOne(ctx, "", identifier, localProductID, catalog, displayName)
}

func (o *Orchestrator) syncOne(ctx context.Context, runID, identifier string, localProductID int64, catalog types.CatalogClient, displayName string) types.SyncResult {
	result := o.sync(ctx, identifier, localProductID, catalog, displayName)

	if err := o.store.SaveResult(context.WithoutCancel(ctx), runID, result); err != nil {
		o.logger.Warnf("Failed to save result of %s: %v", identifier, err)
	}
	return result
}

func (o *Orchestrator) sync(ctx context.Context, identifier string, localProductID int64, catalog types.CatalogClient, displayName string) types.SyncResult {
	ctx, span := tracer.Start(ctx, "SyncProductInventory")
	defer span.End()
	span.SetAttributes(
		attribute.String("identifier", identifier),
		attribute.Int64("local_product_id", localProductID),
	)

	result := types.SyncResult{
		Identifier:     identifier,
		LocalProductID: localProductID,
		SyncedAt:       time.Now(),
	}
	state := types.StateIdle
	transition := func(next types.SyncState) {
		o.logger.Debugf("%s: %s -> %s", identifier, state, next)
		state = next
	}
	fail := func(err error) types.SyncResult {
		transition(types.StateError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Errorf("Sync of %s failed: %v", identifier, err)
		result.Status = types.StatusError
		result.ErrorMessage = err.Error()
		result.RemoteProduct = nil
		return result
	}

	if catalog == nil {
		catalog = o.catalog
	}
	if catalog == nil {
		return fail(errors.New("no catalog client"))
	}

	transition(types.StateAuthenticating)
	if !o.auth.IsLoggedIn() && !o.auth.Authenticate(ctx, o.creds) {
		return fail(types.ErrAuthFailure)
	}
	transition(types.StateAuthenticated)

	transition(types.StateLocating)
	remote, err := o.locator.Locate(ctx, identifier, displayName)
	if err != nil {
		return fail(fmt.Errorf("failed to locate product: %w", err))
	}
	if remote == nil {
		transition(types.StateNotFound)
		o.logger.Warnf("%s not found on the remote site", identifier)
		result.Status = types.StatusNotFound
		result.ErrorMessage = types.ErrNotFound.Error()
		return result
	}
	transition(types.StateLocated)

	transition(types.StateReconciling)
	local, err := catalog.GetProduct(ctx, localProductID)
	if err != nil {
		return fail(fmt.Errorf("failed to load local product: %w", err))
	}
	result.Updates = o.reconciler.Reconcile(ctx, catalog, local, remote)
	transition(types.StateDone)

	result.Status = types.StatusSuccess
	result.RemoteProduct = remote
	span.SetAttributes(attribute.Int("updates", result.Updates.Updates), attribute.Int("errors", result.Updates.Errors))
	o.logger.Infof("Synced %s: %d variants remote, %d updated, %d errors", identifier, len(remote.Variants), result.Updates.Updates, result.Updates.Errors)
	return result
}
