package types

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Credentials are the remote back-office login fields
type Credentials struct {
	LoginID  string `json:"login_id"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// RemoteVariant is one size line read from the remote site
type RemoteVariant struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

// RemoteProduct represents a product located on the remote site with its size/stock lines
type RemoteProduct struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	URL      string          `json:"url"`
	Price    float64         `json:"price"`
	OldPrice *float64        `json:"old_price,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
	Variants []RemoteVariant `json:"variants"`
}

// TotalStock sums the stock of every variant
func (p *RemoteProduct) TotalStock() int {
	if p == nil {
		return 0
	}
	total := 0
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// ScoreBreakdown records which signals contributed to a candidate score
type ScoreBreakdown struct {
	HasLink        int `json:"has_link"`
	HasImage       int `json:"has_image"`
	HasTitle       int `json:"has_title"`
	HasPrice       int `json:"has_price"`
	IdentifierHit  int `json:"identifier_hit"`
	NameWordHits   int `json:"name_word_hits"`
	GenericPenalty int `json:"generic_penalty,omitempty"`
}

// Total returns the score represented by the breakdown
func (b ScoreBreakdown) Total() int {
	return b.HasLink + b.HasImage + b.HasTitle + b.HasPrice + b.IdentifierHit + b.NameWordHits - b.GenericPenalty
}

// CandidateFragment is a DOM subtree hypothesized to be one product listing
type CandidateFragment struct {
	Fragment     *goquery.Selection
	SelectorUsed string
	Score        int
	Breakdown    ScoreBreakdown
}

// LocalVariant is a catalog variant as returned by the catalog platform
type LocalVariant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	Option1           string `json:"option1"`
	Option2           string `json:"option2"`
	Option3           string `json:"option3"`
	InventoryQuantity int    `json:"inventory_quantity"`
	InventoryItemID   int64  `json:"inventory_item_id"`
}

// Option returns the value of option column 1, 2 or 3
func (v LocalVariant) Option(column int) string {
	switch column {
	case 1:
		return v.Option1
	case 2:
		return v.Option2
	case 3:
		return v.Option3
	}
	return ""
}

// LocalProduct is a catalog product with its variants
type LocalProduct struct {
	ID       int64          `json:"id"`
	Title    string         `json:"title"`
	BodyHTML string         `json:"body_html"`
	Vendor   string         `json:"vendor"`
	Options  []string       `json:"options"`
	Variants []LocalVariant `json:"variants"`
}

// Location is a catalog stock location
type Location struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Active  bool   `json:"active"`
	Primary bool   `json:"primary"`
}

// UpdateMethod names the remote write path that applied a quantity
type UpdateMethod string

const (
	MethodModern UpdateMethod = "modern"
	MethodLegacy UpdateMethod = "legacy"
)

// InventoryUpdate is the outcome of one quantity write
type InventoryUpdate struct {
	Success bool         `json:"success"`
	Method  UpdateMethod `json:"method,omitempty"`
	Err     error        `json:"-"`
}

// CatalogClient defines the catalog platform capabilities consumed by the sync pipeline
type CatalogClient interface {
	// GetProduct returns one product with its variants
	GetProduct(ctx context.Context, productID int64) (*LocalProduct, error)

	// GetAllProducts returns every product of the catalog
	GetAllProducts(ctx context.Context) ([]LocalProduct, error)

	// UpdateVariantSKU rewrites a variant SKU
	UpdateVariantSKU(ctx context.Context, variantID int64, sku string) error

	// UpdateInventory sets the available quantity of a variant
	UpdateInventory(ctx context.Context, variantID int64, quantity int) InventoryUpdate

	// ListLocations returns the stock locations of the account
	ListLocations(ctx context.Context) ([]Location, error)
}

// UpdateResult aggregates the writes performed by one reconciliation
type UpdateResult struct {
	Updates int `json:"updates"`
	Creates int `json:"creates"`
	Errors  int `json:"errors"`
}

// SyncStatus is the terminal status of one sync invocation
type SyncStatus string

const (
	StatusSuccess  SyncStatus = "success"
	StatusError    SyncStatus = "error"
	StatusNotFound SyncStatus = "not_found"
)

// SyncState is a step of the per-product sync state machine
type SyncState string

const (
	StateIdle           SyncState = "idle"
	StateAuthenticating SyncState = "authenticating"
	StateAuthenticated  SyncState = "authenticated"
	StateLocating       SyncState = "locating"
	StateLocated        SyncState = "located"
	StateReconciling    SyncState = "reconciling"
	StateDone           SyncState = "done"
	StateNotFound       SyncState = "not_found"
	StateError          SyncState = "error"
)

// SyncResult is the outcome of one product sync
type SyncResult struct {
	Identifier     string         `json:"identifier"`
	LocalProductID int64          `json:"local_product_id"`
	RemoteProduct  *RemoteProduct `json:"remote_product"`
	Status         SyncStatus     `json:"status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	SyncedAt       time.Time      `json:"synced_at"`
	Updates        UpdateResult   `json:"updates"`
}

// BatchItem is one product to synchronize in a batch
type BatchItem struct {
	Identifier     string `json:"sku"`
	LocalProductID int64  `json:"product_id"`
	DisplayName    string `json:"name,omitempty"`
}

// BatchSummary is returned once a batch stops
type BatchSummary struct {
	RunID      string       `json:"run_id"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Total      int          `json:"total"`
	DurationMs int64        `json:"duration_ms"`
	Cancelled  bool         `json:"cancelled"`
	StoppedAt  int          `json:"stopped_at,omitempty"`
	Results    []SyncResult `json:"results"`
}

// ProgressType tags a batch progress event
type ProgressType string

const (
	ProgressUpdate    ProgressType = "progress"
	ProgressResult    ProgressType = "result"
	ProgressComplete  ProgressType = "complete"
	ProgressCancelled ProgressType = "cancelled"
)

// ProgressEvent is one batch progress message, serialized as one JSON object per line
type ProgressEvent struct {
	Type         ProgressType `json:"type"`
	Current      int          `json:"current"`
	Total        int          `json:"total"`
	Percentage   int          `json:"percentage"`
	SKU          string       `json:"sku"`
	ProductName  string       `json:"productName"`
	Success      *bool        `json:"success,omitempty"`
	Message      string       `json:"message"`
	KimlandStock *int         `json:"kimlandStock,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Config holds the configuration for the sync pipeline
type Config struct {
	BaseURL           string
	LoginPagePath     string
	LoginPostPath     string
	IndexPath         string
	LogoutPath        string
	SessionCookieName string
	VendorMarker      string

	RequestDelay        time.Duration
	MaxRetries          int
	Timeout             time.Duration
	UseHeadlessBrowser  bool
	UserAgent           string
	BatchItemDelay      time.Duration
	AlternateQueryDelay time.Duration
	MaxAlternateQueries int
	MinPageLength       int
	LargePageLength     int
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://kimland.dz",
		LoginPagePath:     "/app/client/index.php",
		LoginPostPath:     "/app/client/fonction/connexion.php",
		IndexPath:         "/app/client/index.php",
		LogoutPath:        "/app/client/fonction/deconnexion.php",
		SessionCookieName: "PHPSESSID",
		VendorMarker:      "kimland",

		RequestDelay:        200 * time.Millisecond,
		MaxRetries:          2,
		Timeout:             30 * time.Second,
		UseHeadlessBrowser:  false,
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		BatchItemDelay:      1500 * time.Millisecond,
		AlternateQueryDelay: 1 * time.Second,
		MaxAlternateQueries: 3,
		MinPageLength:       1000,
		LargePageLength:     50000,
	}
}

// Logger defines the logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
