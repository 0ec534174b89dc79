// Package utils provides utility functions for the application.
package utils

import (
	"strings"
)

// callingCodes maps ISO-3166 alpha-2 country codes to international calling codes.
var callingCodes = map[string]string{
	"AE": "971", "AF": "93", "AR": "54", "AT": "43", "AU": "61",
	"BD": "880", "BE": "32", "BR": "55", "CA": "1", "CH": "41",
	"CL": "56", "CN": "86", "CO": "57", "DE": "49", "DK": "45",
	"DZ": "213", "EG": "20", "ES": "34", "FI": "358", "FR": "33",
	"GB": "44", "GH": "233", "GR": "30", "HK": "852", "ID": "62",
	"IE": "353", "IL": "972", "IN": "91", "IQ": "964", "IR": "98",
	"IT": "39", "JO": "962", "JP": "81", "KE": "254", "KR": "82",
	"KW": "965", "LB": "961", "LK": "94", "MA": "212", "MX": "52",
	"MY": "60", "NG": "234", "NL": "31", "NO": "47", "NP": "977",
	"NZ": "64", "OM": "968", "PH": "63", "PK": "92", "PL": "48",
	"PT": "351", "QA": "974", "RO": "40", "RU": "7", "SA": "966",
	"SE": "46", "SG": "65", "TH": "66", "TR": "90", "TW": "886",
	"UA": "380", "US": "1", "VN": "84", "ZA": "27",
}

// countrySynonyms maps free-text country names (as they appear in order
// addresses) to ISO alpha-2 codes before the calling-code lookup.
var countrySynonyms = map[string]string{
	"pakistan":             "PK",
	"india":                "IN",
	"bangladesh":           "BD",
	"sri lanka":            "LK",
	"united states":        "US",
	"usa":                  "US",
	"united kingdom":       "GB",
	"uk":                   "GB",
	"great britain":        "GB",
	"united arab emirates": "AE",
	"uae":                  "AE",
	"saudi arabia":         "SA",
	"egypt":                "EG",
	"nigeria":              "NG",
	"indonesia":            "ID",
	"malaysia":             "MY",
	"philippines":          "PH",
	"turkey":               "TR",
	"germany":              "DE",
	"france":               "FR",
	"spain":                "ES",
	"italy":                "IT",
	"brazil":               "BR",
	"mexico":               "MX",
	"canada":               "CA",
	"australia":            "AU",
	"south africa":         "ZA",
	"netherlands":          "NL",
	"kenya":                "KE",
	"morocco":              "MA",
	"iran":                 "IR",
}

// localNumberLengths lists known national significant number lengths
// (without trunk prefix) per country.
var localNumberLengths = map[string][]int{
	"PK": {10},
	"IN": {10},
	"BD": {10},
	"US": {10},
	"CA": {10},
	"GB": {10, 11},
	"AE": {9},
	"SA": {9},
	"EG": {10},
	"NG": {10},
	"ID": {9, 10, 11},
	"MY": {9, 10},
	"BR": {10, 11},
	"TR": {10},
	"DE": {10, 11},
	"FR": {9},
	"AU": {9},
	"ZA": {9},
	"IR": {10},
}

// NormalizePhone converts a raw, possibly locally-formatted phone number into
// an E.164-like international number using an ordered list of country hints
// (ISO codes or free-text country names) extracted from the order payload.
// The result is best-effort: ambiguous inputs are returned stripped rather
// than rejected. The empty string is returned only when the input is empty
// or has fewer than seven digits.
func NormalizePhone(raw string, countryHints []string) string {
	trimmed := strings.TrimSpace(raw)
	hadPlus := strings.HasPrefix(trimmed, "+")
	digits := stripNonDigits(trimmed)

	if len(digits) < 7 {
		return ""
	}

	// Already international when the caller marked it so
	if hadPlus && len(digits) >= 10 {
		return digits
	}

	iso, callingCode := resolveCountry(countryHints)

	if callingCode != "" {
		// Already carries the calling code
		if strings.HasPrefix(digits, callingCode) && len(digits)-len(callingCode) >= 7 {
			return digits
		}

		// Trunk prefix: drop the leading zero and prepend the calling code
		if digits[0] == '0' && len(digits)-1 >= 7 {
			return callingCode + digits[1:]
		}
	}

	// International dialing prefix 00
	if strings.HasPrefix(digits, "00") && len(digits) > 10 {
		return digits[2:]
	}

	if callingCode != "" {
		if matchesLocalLength(iso, len(digits)) {
			return callingCode + digits
		}
		if len(digits) <= 11 && !strings.HasPrefix(digits, callingCode) {
			return callingCode + digits
		}
	}

	// Long enough to already be international
	if len(digits) >= 12 {
		return digits
	}

	return digits
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolveCountry walks the ordered hints and returns the first one that maps
// to a known calling code, via the ISO table or the free-text synonym table.
func resolveCountry(hints []string) (iso string, callingCode string) {
	for _, hint := range hints {
		h := strings.TrimSpace(hint)
		if h == "" {
			continue
		}
		if len(h) == 2 {
			if code, ok := callingCodes[strings.ToUpper(h)]; ok {
				return strings.ToUpper(h), code
			}
			continue
		}
		if mapped, ok := countrySynonyms[strings.ToLower(h)]; ok {
			return mapped, callingCodes[mapped]
		}
	}
	return "", ""
}

func matchesLocalLength(iso string, n int) bool {
	for _, l := range localNumberLengths[iso] {
		if l == n {
			return true
		}
	}
	return false
}
