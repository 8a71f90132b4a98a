package product

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/shop-harvester/internal/client"
)

// Politeness pause bounds between pipeline steps. The pause desynchronizes
// concurrent workers' request timing; it is not needed for correctness.
const (
	jitterMin = 250 * time.Millisecond
	jitterMax = 750 * time.Millisecond
)

const detailExpand = "documents,specifications,styledproducts,htmlcontent,attributes,crosssells,pricing,relatedproducts"

// Pipeline fetches one product through the three dependent API calls.
// Safe for concurrent use.
type Pipeline struct {
	exec    *client.Executor
	baseURL string
	qty     int
	log     *zap.Logger

	// pause is replaceable in tests.
	pause func(ctx context.Context) error
}

// NewPipeline builds a Pipeline. qty is the order quantity requested from the
// pricing endpoint.
func NewPipeline(exec *client.Executor, baseURL string, qty int, log *zap.Logger) *Pipeline {
	return &Pipeline{
		exec:    exec,
		baseURL: baseURL,
		qty:     qty,
		log:     log,
		pause:   jitterPause,
	}
}

// Fetch runs the catalog → pricing → detail sequence for one product number.
// A nil record with an empty skip reason only occurs on context cancellation,
// reported through err. Skips are expected outcomes, not errors.
func (p *Pipeline) Fetch(ctx context.Context, productNumber string) (rec Record, skip string, err error) {
	log := p.log.With(zap.String("product_number", productNumber))

	handle, skip, err := p.lookupHandle(ctx, productNumber, log)
	if err != nil || skip != "" {
		return nil, skip, err
	}
	log = log.With(zap.String("product_id", handle))

	if err := p.pause(ctx); err != nil {
		return nil, "", err
	}

	pricing, inv, skip, err := p.lookupPricing(ctx, handle, log)
	if err != nil || skip != "" {
		return nil, skip, err
	}

	if err := p.pause(ctx); err != nil {
		return nil, "", err
	}

	// Detail degrades gracefully: pricing already satisfies the record's
	// minimum viable content.
	detail := p.lookupDetail(ctx, handle, log)

	return buildRecord(productNumber, handle, pricing, inv, detail), "", nil
}

func (p *Pipeline) lookupHandle(ctx context.Context, productNumber string, log *zap.Logger) (string, string, error) {
	catalogURL := fmt.Sprintf("%s/api/v1/catalogpages?path=%s",
		p.baseURL, url.QueryEscape("/Product_UrlRoot/"+productNumber))

	outcome, err := p.exec.Do(ctx, http.MethodGet, catalogURL, nil)
	if err != nil {
		return "", "", err
	}
	switch outcome.Kind {
	case client.KindSuccess:
	case client.KindRestricted:
		log.Info("product restricted for this account, skipping")
		return "", "restricted", nil
	default:
		log.Info("catalog lookup failed, skipping",
			zap.String("outcome", outcome.Kind.String()), zap.Int("status", outcome.Status))
		return "", "catalog " + outcome.Kind.String(), nil
	}

	var page CatalogPage
	if err := json.Unmarshal(outcome.Payload, &page); err != nil {
		log.Info("malformed catalog payload, skipping", zap.Error(err))
		return "", "malformed catalog payload", nil
	}
	if page.ProductID == "" {
		log.Info("no product handle in catalog, skipping")
		return "", "no product handle", nil
	}
	return string(page.ProductID), "", nil
}

func (p *Pipeline) lookupPricing(ctx context.Context, handle string, log *zap.Logger) (*PricingResult, *inventoryInfo, string, error) {
	body, err := json.Marshal(PricingRequest{
		ProductPriceParameters: []PriceParameter{{
			ProductID:     handle,
			UnitOfMeasure: "EA",
			QtyOrdered:    p.qty,
		}},
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to encode pricing request: %w", err)
	}

	outcome, err := p.exec.Do(ctx, http.MethodPost, p.baseURL+"/api/v1/realtimepricing", body)
	if err != nil {
		return nil, nil, "", err
	}
	if !outcome.OK() {
		log.Info("pricing lookup failed, skipping",
			zap.String("outcome", outcome.Kind.String()), zap.Int("status", outcome.Status))
		return nil, nil, "pricing " + outcome.Kind.String(), nil
	}

	var resp PricingResponse
	if err := json.Unmarshal(outcome.Payload, &resp); err != nil {
		log.Info("malformed pricing payload, skipping", zap.Error(err))
		return nil, nil, "malformed pricing payload", nil
	}
	if len(resp.RealTimePricingResults) == 0 {
		log.Info("no pricing results, skipping")
		return nil, nil, "no pricing results", nil
	}

	return &resp.RealTimePricingResults[0], decodeInventory(resp.Properties, handle), "", nil
}

// decodeInventory unpacks the inventory JSON string embedded in the pricing
// response properties. Absent or undecodable inventory is not a failure.
func decodeInventory(properties map[string]string, handle string) *inventoryInfo {
	raw, ok := properties["realTimeInventoryResults"]
	if !ok {
		return nil
	}
	var results inventoryResults
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil
	}
	info, ok := results[handle]
	if !ok {
		return nil
	}
	return &info
}

func (p *Pipeline) lookupDetail(ctx context.Context, handle string, log *zap.Logger) *ProductDetail {
	detailURL := fmt.Sprintf(
		"%s/api/v1/products/%s?addToRecentlyViewed=true&expand=%s&includeAlternateInventory=false&includeAttributes=IncludeOnProduct&replaceProducts=false",
		p.baseURL, url.PathEscape(handle), detailExpand)

	outcome, err := p.exec.Do(ctx, http.MethodGet, detailURL, nil)
	if err != nil || !outcome.OK() {
		log.Info("detail lookup failed, continuing with pricing fields only")
		return nil
	}

	var resp DetailResponse
	if err := json.Unmarshal(outcome.Payload, &resp); err != nil {
		log.Info("malformed detail payload, continuing with pricing fields only", zap.Error(err))
		return nil
	}
	return &resp.Product
}

func jitterPause(ctx context.Context) error {
	d := jitterMin + time.Duration(rand.Int63n(int64(jitterMax-jitterMin)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
