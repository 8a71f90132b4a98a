package product

import "strconv"

// KeyColumn is the record's identity column. At most one record per product
// number exists in any committed result set.
const KeyColumn = "product_number"

// Record is one flat harvested row, keyed by product_number.
type Record map[string]string

// Key returns the record's product number.
func (r Record) Key() string { return r[KeyColumn] }

// Columns is the canonical output column order: pricing and inventory fields
// first, then the detail fields in mapping-table order.
var Columns = append([]string{
	KeyColumn,
	"product_id",
	"material_id",
	"item_status",
	"unit_list_price",
	"unit_regular_price",
	"unit_net_price",
	"actual_price",
	"is_on_sale",
	"unit_of_measure",
	"distribution_centre",
	"division",
	"category_group",
	"order_group",
	"qty_on_hand",
	"availability_message",
	"available_date",
}, detailColumns()...)

// detailField maps one ProductDetail field to its output column.
type detailField struct {
	column string
	value  func(d *ProductDetail) string
}

// detailFields is the declarative merge table for the detail lookup. No
// branching depends on individual values, so a table beats procedural copies.
var detailFields = []detailField{
	{"short_description", func(d *ProductDetail) string { return d.ShortDescription }},
	{"erp_number", func(d *ProductDetail) string { return d.ERPNumber }},
	{"erp_description", func(d *ProductDetail) string { return d.ERPDescription }},
	{"large_image_url", func(d *ProductDetail) string { return d.LargeImagePath }},
	{"shipping_length", func(d *ProductDetail) string { return string(d.ShippingLength) }},
	{"shipping_width", func(d *ProductDetail) string { return string(d.ShippingWidth) }},
	{"shipping_height", func(d *ProductDetail) string { return string(d.ShippingHeight) }},
	{"shipping_weight", func(d *ProductDetail) string { return string(d.ShippingWeight) }},
	{"unit_of_measure_description", func(d *ProductDetail) string { return d.UnitOfMeasureDescription }},
	{"is_active", func(d *ProductDetail) string { return strconv.FormatBool(d.IsActive) }},
	{"is_discontinued", func(d *ProductDetail) string { return strconv.FormatBool(d.IsDiscontinued) }},
	{"can_back_order", func(d *ProductDetail) string { return strconv.FormatBool(d.CanBackOrder) }},
	{"track_inventory", func(d *ProductDetail) string { return strconv.FormatBool(d.TrackInventory) }},
	{"minimum_order_qty", func(d *ProductDetail) string { return strconv.Itoa(d.MinimumOrderQty) }},
	{"multiple_sale_qty", func(d *ProductDetail) string { return strconv.Itoa(d.MultipleSaleQty) }},
	{"sku", func(d *ProductDetail) string { return d.SKU }},
	{"upc_code", func(d *ProductDetail) string { return d.UPCCode }},
	{"model_number", func(d *ProductDetail) string { return d.ModelNumber }},
	{"brand", func(d *ProductDetail) string { return d.Brand }},
	{"product_line", func(d *ProductDetail) string { return d.ProductLine }},
	{"tax_code1", func(d *ProductDetail) string { return d.TaxCode1 }},
	{"tax_code2", func(d *ProductDetail) string { return d.TaxCode2 }},
	{"tax_category", func(d *ProductDetail) string { return d.TaxCategory }},
	{"product_detail_url", func(d *ProductDetail) string { return d.ProductDetailURL }},
	{"is_special_order", func(d *ProductDetail) string { return strconv.FormatBool(d.IsSpecialOrder) }},
	{"is_gift_card", func(d *ProductDetail) string { return strconv.FormatBool(d.IsGiftCard) }},
	{"is_subscription", func(d *ProductDetail) string { return strconv.FormatBool(d.IsSubscription) }},
	{"can_add_to_cart", func(d *ProductDetail) string { return strconv.FormatBool(d.CanAddToCart) }},
	{"can_add_to_wishlist", func(d *ProductDetail) string { return strconv.FormatBool(d.CanAddToWishlist) }},
	{"can_show_price", func(d *ProductDetail) string { return strconv.FormatBool(d.CanShowPrice) }},
	{"can_show_unit_of_measure", func(d *ProductDetail) string { return strconv.FormatBool(d.CanShowUnitOfMeasure) }},
	{"can_enter_quantity", func(d *ProductDetail) string { return strconv.FormatBool(d.CanEnterQuantity) }},
	{"requires_real_time_inventory", func(d *ProductDetail) string { return strconv.FormatBool(d.RequiresRealTimeInventory) }},
	{"availability_message_type", func(d *ProductDetail) string { return string(d.Availability.MessageType) }},
	{"meta_description", func(d *ProductDetail) string { return d.MetaDescription }},
	{"meta_keywords", func(d *ProductDetail) string { return d.MetaKeywords }},
	{"page_title", func(d *ProductDetail) string { return d.PageTitle }},
}

func detailColumns() []string {
	cols := make([]string, len(detailFields))
	for i, f := range detailFields {
		cols[i] = f.column
	}
	return cols
}

// buildRecord merges pricing, inventory, and detail into one flat record
// keyed by the original product number. The product number, not the numeric
// handle, is the stable join key across steps and across resumed runs.
func buildRecord(productNumber, handle string, pricing *PricingResult, inv *inventoryInfo, detail *ProductDetail) Record {
	rec := Record{
		KeyColumn:             productNumber,
		"product_id":          handle,
		"material_id":         pricing.AdditionalResults["materialId"],
		"item_status":         pricing.AdditionalResults["itemStatus"],
		"unit_list_price":     formatFloat(pricing.UnitListPrice),
		"unit_regular_price":  formatFloat(pricing.UnitRegularPrice),
		"unit_net_price":      formatFloat(pricing.UnitNetPrice),
		"actual_price":        formatFloat(pricing.ActualPrice),
		"is_on_sale":          strconv.FormatBool(pricing.IsOnSale),
		"unit_of_measure":     pricing.UnitOfMeasure,
		"distribution_centre": pricing.AdditionalResults["distributionCentre"],
		"division":            pricing.AdditionalResults["division"],
		"category_group":      categoryGroup(pricing.AdditionalResults),
		"order_group":         pricing.AdditionalResults["orderGroup"],
	}

	if inv != nil {
		rec["qty_on_hand"] = formatFloat(inv.QtyOnHand)
		if len(inv.InventoryAvailabilityDtos) > 0 {
			rec["availability_message"] = inv.InventoryAvailabilityDtos[0].Availability.Message
		}
		if inv.AdditionalResults.ItemStatus != "" {
			rec["item_status"] = inv.AdditionalResults.ItemStatus
		}
		rec["available_date"] = inv.AdditionalResults.AvailableDate
	}

	if detail != nil {
		for _, f := range detailFields {
			rec[f.column] = f.value(detail)
		}
		if detail.UnitOfMeasure != "" {
			rec["unit_of_measure"] = detail.UnitOfMeasure
		}
		if detail.Availability.Message != "" {
			rec["availability_message"] = detail.Availability.Message
		}
	}

	return rec
}

// categoryGroup reads the category group attribute under both key spellings
// the upstream API has shipped ("category Group" and "categoryGroup"). The
// space-containing variant looks like an upstream field-name bug but is what
// the live API serves, so both are accepted rather than "fixed".
func categoryGroup(attrs map[string]string) string {
	if v, ok := attrs["category Group"]; ok {
		return v
	}
	return attrs["categoryGroup"]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
