// Package product implements the per-identifier fetch pipeline: catalog
// lookup, realtime pricing, and product detail, merged into one flat record.
package product

import (
	"encoding/json"
	"fmt"
)

// flexString decodes a JSON value that the API serves inconsistently as
// either a string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("value is neither string nor number: %s", string(data))
}

// CatalogPage is the payload of /api/v1/catalogpages. Only the product
// handle is consumed; the handle is valid for the duration of one run and
// never persisted.
type CatalogPage struct {
	ProductID flexString `json:"productId"`
}

// PricingRequest is the body of the realtime pricing POST.
type PricingRequest struct {
	ProductPriceParameters []PriceParameter `json:"productPriceParameters"`
}

// PriceParameter names one product and quantity to price.
type PriceParameter struct {
	ProductID     string `json:"productId"`
	UnitOfMeasure string `json:"unitOfMeasure"`
	QtyOrdered    int    `json:"qtyOrdered"`
}

// PricingResponse is the payload of /api/v1/realtimepricing.
type PricingResponse struct {
	RealTimePricingResults []PricingResult   `json:"realTimePricingResults"`
	Properties             map[string]string `json:"properties"`
}

// PricingResult carries base pricing fields plus a free-form bag of
// ERP-sourced attributes. AdditionalResults stays a map because the upstream
// key set is unstable (see categoryGroup in record.go).
type PricingResult struct {
	UnitListPrice     float64           `json:"unitListPrice"`
	UnitRegularPrice  float64           `json:"unitRegularPrice"`
	UnitNetPrice      float64           `json:"unitNetPrice"`
	ActualPrice       float64           `json:"actualPrice"`
	IsOnSale          bool              `json:"isOnSale"`
	UnitOfMeasure     string            `json:"unitOfMeasure"`
	AdditionalResults map[string]string `json:"additionalResults"`
}

// inventoryResults maps product handle to inventory info. The pricing
// endpoint ships it as a JSON string inside properties.
type inventoryResults map[string]inventoryInfo

type inventoryInfo struct {
	QtyOnHand                 float64 `json:"QtyOnHand"`
	InventoryAvailabilityDtos []struct {
		Availability struct {
			Message string `json:"Message"`
		} `json:"Availability"`
	} `json:"InventoryAvailabilityDtos"`
	AdditionalResults struct {
		ItemStatus    string `json:"ItemStatus"`
		AvailableDate string `json:"AvailableDate"`
	} `json:"AdditionalResults"`
}

// DetailResponse is the payload of /api/v1/products/{handle}.
type DetailResponse struct {
	Product ProductDetail `json:"product"`
}

// ProductDetail holds the descriptive, shipping, and flag fields merged into
// the record after pricing. A failed detail lookup leaves all of these at
// their zero values; pricing alone satisfies the record's minimum content.
type ProductDetail struct {
	ShortDescription          string     `json:"shortDescription"`
	ERPNumber                 string     `json:"erpNumber"`
	ERPDescription            string     `json:"erpDescription"`
	LargeImagePath            string     `json:"largeImagePath"`
	ShippingLength            flexString `json:"shippingLength"`
	ShippingWidth             flexString `json:"shippingWidth"`
	ShippingHeight            flexString `json:"shippingHeight"`
	ShippingWeight            flexString `json:"shippingWeight"`
	UnitOfMeasure             string     `json:"unitOfMeasure"`
	UnitOfMeasureDescription  string     `json:"unitOfMeasureDescription"`
	IsActive                  bool       `json:"isActive"`
	IsDiscontinued            bool       `json:"isDiscontinued"`
	CanBackOrder              bool       `json:"canBackOrder"`
	TrackInventory            bool       `json:"trackInventory"`
	MinimumOrderQty           int        `json:"minimumOrderQty"`
	MultipleSaleQty           int        `json:"multipleSaleQty"`
	SKU                       string     `json:"sku"`
	UPCCode                   string     `json:"upcCode"`
	ModelNumber               string     `json:"modelNumber"`
	Brand                     string     `json:"brand"`
	ProductLine               string     `json:"productLine"`
	TaxCode1                  string     `json:"taxCode1"`
	TaxCode2                  string     `json:"taxCode2"`
	TaxCategory               string     `json:"taxCategory"`
	ProductDetailURL          string     `json:"productDetailUrl"`
	IsSpecialOrder            bool       `json:"isSpecialOrder"`
	IsGiftCard                bool       `json:"isGiftCard"`
	IsSubscription            bool       `json:"isSubscription"`
	CanAddToCart              bool       `json:"canAddToCart"`
	CanAddToWishlist          bool       `json:"canAddToWishlist"`
	CanShowPrice              bool       `json:"canShowPrice"`
	CanShowUnitOfMeasure      bool       `json:"canShowUnitOfMeasure"`
	CanEnterQuantity          bool       `json:"canEnterQuantity"`
	RequiresRealTimeInventory bool       `json:"requiresRealTimeInventory"`
	MetaDescription           string     `json:"metaDescription"`
	MetaKeywords              string     `json:"metaKeywords"`
	PageTitle                 string     `json:"pageTitle"`
	Availability              struct {
		Message     string     `json:"message"`
		MessageType flexString `json:"messageType"`
	} `json:"availability"`
}
