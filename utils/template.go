// Package utils provides utility functions for the application.
package utils

import (
	"strings"
)

// Template placeholder tokens understood by merchant-authored message bodies.
// Substitution is literal token-for-value replacement; tokens outside this
// vocabulary are left untouched.
const (
	TokenStoreName    = "{{store_name}}"
	TokenOrderNumber  = "{{order_number}}"
	TokenCustomerName = "{{customer_name}}"
	TokenOrderID      = "{{order_id}}"
	TokenTotalPrice   = "{{total_price}}"
	TokenAddress      = "{{address}}"
	TokenCity         = "{{city}}"
	TokenPhone        = "{{phone}}"
	TokenItems        = "{{items}}"
	TokenTrackingLink = "{{tracking_link}}"

	// TokenName is the only placeholder supported in campaign messages
	TokenName = "{{name}}"
)

// tokenDefaults holds the literal fallback used when the source event carries
// no usable value for a token.
var tokenDefaults = map[string]string{
	TokenStoreName:    "our store",
	TokenOrderNumber:  "N/A",
	TokenCustomerName: "Customer",
	TokenOrderID:      "N/A",
	TokenTotalPrice:   "N/A",
	TokenAddress:      "Address not provided",
	TokenCity:         "City not provided",
	TokenPhone:        "Phone not provided",
	TokenItems:        "your items",
	TokenTrackingLink: "Tracking not available yet",
}

// RenderTemplate substitutes the fixed placeholder vocabulary into body.
// values is keyed by token constant; empty or missing values fall back to
// the token's literal default. The function never fails: bodies with no
// tokens, and tokens with no values, both pass through unchanged.
func RenderTemplate(body string, values map[string]string) string {
	out := body
	for token, def := range tokenDefaults {
		if !strings.Contains(out, token) {
			continue
		}
		v := values[token]
		if v == "" {
			v = def
		}
		out = strings.ReplaceAll(out, token, v)
	}
	return out
}

// RenderCampaignMessage substitutes the per-contact name token only.
func RenderCampaignMessage(body, name string) string {
	if name == "" {
		name = "there"
	}
	return strings.ReplaceAll(body, TokenName, name)
}
