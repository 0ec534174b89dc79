package dto

import (
	"strconv"
	"strings"

	"github.com/peymanslh/wanotifier/utils"
)

// Address is a postal address as delivered in commerce-platform payloads.
// Every field is optional; accessors must tolerate a nil receiver.
type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	Province    string `json:"province"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Zip         string `json:"zip"`
}

// OrderCustomer is the customer block embedded in order payloads
type OrderCustomer struct {
	ID             int64    `json:"id"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	DefaultAddress *Address `json:"default_address,omitempty"`
}

// LineItem is one purchased item in an order or checkout
type LineItem struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// Fulfillment carries shipment tracking data on fulfillment events
type Fulfillment struct {
	TrackingNumber  string `json:"tracking_number"`
	TrackingURL     string `json:"tracking_url"`
	TrackingCompany string `json:"tracking_company"`
}

// OrderEvent is the inbound commerce event payload (orders and abandoned
// checkouts share the shape; checkout-only fields are empty on orders and
// vice versa). Nested blocks are pointers because the platform omits them
// freely; all accessors are nil-safe.
type OrderEvent struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	OrderNumber int64  `json:"order_number"`
	Token       string `json:"token"`

	Email string `json:"email"`
	Phone string `json:"phone"`

	TotalPrice string `json:"total_price"`
	Currency   string `json:"currency"`

	FinancialStatus string `json:"financial_status"`
	CancelReason    string `json:"cancel_reason"`

	Customer        *OrderCustomer `json:"customer,omitempty"`
	ShippingAddress *Address       `json:"shipping_address,omitempty"`
	BillingAddress  *Address       `json:"billing_address,omitempty"`

	LineItems    []LineItem    `json:"line_items,omitempty"`
	Fulfillments []Fulfillment `json:"fulfillments,omitempty"`

	// Checkout-only fields
	AbandonedCheckoutURL string `json:"abandoned_checkout_url,omitempty"`
	CartToken            string `json:"cart_token,omitempty"`

	CreatedAt string `json:"created_at"`
}

// EventID returns the external identifier used for idempotency claims:
// the numeric order ID when present, otherwise the checkout token.
func (e *OrderEvent) EventID() string {
	if e == nil {
		return ""
	}
	if e.ID != 0 {
		return strconv.FormatInt(e.ID, 10)
	}
	return e.Token
}

// CartKey returns the identifier an abandoned checkout shares with the order
// that later pays for it: the cart token when present, otherwise the checkout
// token. Paid orders carry the same cart_token as the checkout they complete,
// so recovery lookups join on this value.
func (e *OrderEvent) CartKey() string {
	if e == nil {
		return ""
	}
	if e.CartToken != "" {
		return e.CartToken
	}
	return e.Token
}

// CountryHints returns country codes/names in destination priority order:
// shipping address, billing address, then the customer's default address.
func (e *OrderEvent) CountryHints() []string {
	if e == nil {
		return nil
	}
	var hints []string
	for _, a := range []*Address{e.ShippingAddress, e.BillingAddress, e.customerDefaultAddress()} {
		if a == nil {
			continue
		}
		if a.CountryCode != "" {
			hints = append(hints, a.CountryCode)
		}
		if a.Country != "" {
			hints = append(hints, a.Country)
		}
	}
	return hints
}

// PhoneCandidates returns raw phone values in the same priority order the
// destination is resolved: shipping, billing, order-level, customer, default
// address.
func (e *OrderEvent) PhoneCandidates() []string {
	if e == nil {
		return nil
	}
	var out []string
	if e.ShippingAddress != nil {
		out = append(out, e.ShippingAddress.Phone)
	}
	if e.BillingAddress != nil {
		out = append(out, e.BillingAddress.Phone)
	}
	out = append(out, e.Phone)
	if e.Customer != nil {
		out = append(out, e.Customer.Phone)
	}
	if a := e.customerDefaultAddress(); a != nil {
		out = append(out, a.Phone)
	}
	return out
}

func (e *OrderEvent) customerDefaultAddress() *Address {
	if e == nil || e.Customer == nil {
		return nil
	}
	return e.Customer.DefaultAddress
}

// CustomerName returns the best available customer display name
func (e *OrderEvent) CustomerName() string {
	if e == nil {
		return ""
	}
	if e.Customer != nil {
		full := strings.TrimSpace(e.Customer.FirstName + " " + e.Customer.LastName)
		if full != "" {
			return full
		}
	}
	if e.ShippingAddress != nil {
		if e.ShippingAddress.Name != "" {
			return e.ShippingAddress.Name
		}
		full := strings.TrimSpace(e.ShippingAddress.FirstName + " " + e.ShippingAddress.LastName)
		if full != "" {
			return full
		}
	}
	return ""
}

// OrderLabel returns the human-facing order number ("#1001" style name when
// present, otherwise the numeric order number).
func (e *OrderEvent) OrderLabel() string {
	if e == nil {
		return ""
	}
	if e.Name != "" {
		return e.Name
	}
	if e.OrderNumber != 0 {
		return strconv.FormatInt(e.OrderNumber, 10)
	}
	return ""
}

// AddressLine returns the shipping street address, falling back to billing
func (e *OrderEvent) AddressLine() string {
	if e == nil {
		return ""
	}
	for _, a := range []*Address{e.ShippingAddress, e.BillingAddress} {
		if a == nil {
			continue
		}
		line := strings.TrimSpace(strings.TrimSpace(a.Address1) + " " + strings.TrimSpace(a.Address2))
		if line != "" {
			return line
		}
	}
	return ""
}

// CityName returns the shipping city, falling back to billing
func (e *OrderEvent) CityName() string {
	if e == nil {
		return ""
	}
	for _, a := range []*Address{e.ShippingAddress, e.BillingAddress} {
		if a != nil && a.City != "" {
			return a.City
		}
	}
	return ""
}

// ItemsSummary renders the line items as "2x Shirt, 1x Mug"
func (e *OrderEvent) ItemsSummary() string {
	if e == nil || len(e.LineItems) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e.LineItems))
	for _, li := range e.LineItems {
		if li.Title == "" {
			continue
		}
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		parts = append(parts, strconv.Itoa(qty)+"x "+li.Title)
	}
	return strings.Join(parts, ", ")
}

// TrackingLink returns the first usable tracking URL or number
func (e *OrderEvent) TrackingLink() string {
	if e == nil {
		return ""
	}
	for _, f := range e.Fulfillments {
		if f.TrackingURL != "" {
			return f.TrackingURL
		}
		if f.TrackingNumber != "" {
			return f.TrackingNumber
		}
	}
	return ""
}

// TotalWithCurrency renders the order total with its currency code
func (e *OrderEvent) TotalWithCurrency() string {
	if e == nil || e.TotalPrice == "" {
		return ""
	}
	if e.Currency == "" {
		return e.TotalPrice
	}
	return e.TotalPrice + " " + e.Currency
}

// RevenueAmount parses the order total for recovered-revenue accounting
func (e *OrderEvent) RevenueAmount() float64 {
	if e == nil {
		return 0
	}
	v, err := strconv.ParseFloat(e.TotalPrice, 64)
	if err != nil {
		return 0
	}
	return v
}

// TemplateValues builds the placeholder substitution map for the template
// resolver, keyed by token constant. Missing source fields yield empty
// values; the resolver applies the literal defaults.
func (e *OrderEvent) TemplateValues(storeName string) map[string]string {
	values := map[string]string{
		utils.TokenStoreName:    storeName,
		utils.TokenOrderNumber:  e.OrderLabel(),
		utils.TokenCustomerName: e.CustomerName(),
		utils.TokenTotalPrice:   e.TotalWithCurrency(),
		utils.TokenAddress:      e.AddressLine(),
		utils.TokenCity:         e.CityName(),
		utils.TokenItems:        e.ItemsSummary(),
		utils.TokenTrackingLink: e.TrackingLink(),
	}
	if e != nil {
		if e.ID != 0 {
			values[utils.TokenOrderID] = strconv.FormatInt(e.ID, 10)
		}
		if phones := e.PhoneCandidates(); len(phones) > 0 {
			values[utils.TokenPhone] = utils.FirstNonEmpty(phones...)
		}
		if e.AbandonedCheckoutURL != "" {
			values[utils.TokenTrackingLink] = e.AbandonedCheckoutURL
		}
	}
	return values
}
