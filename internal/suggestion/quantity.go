package suggestion

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultQuantityGrams is used when an added food has no explicit amount.
const DefaultQuantityGrams = 100.0

// Longer spellings come first so that "grams" is not read as "g" + "rams".
const unitPattern = `kilograms?|kilos?|kg|grams?|gr|g|ounces?|oz|pounds?|lbs?|` +
	`cups?|tablespoons?|tbsps?|teaspoons?|tsps?|doses?|servings?|scoops?|` +
	`milliliters?|millilitres?|ml`

// Mixed numbers and fractions are tried before decimals so that "1/2" is
// one amount rather than "1" and "2".
const numberPattern = `(\d+\s+\d+/\d+|\d+/\d+|\d+(?:\.\d+)?)`

var (
	quantityRe   = regexp.MustCompile(`(?i)\b` + numberPattern + `\s*(?:(` + unitPattern + `)\b)?`)
	toQuantityRe = regexp.MustCompile(`(?i)\bto\s+` + numberPattern + `\s*(?:(` + unitPattern + `)\b)?`)
)

// gramsPerUnit converts a unit to grams. Units not listed here, and bare
// numbers, are taken as grams.
func gramsPerUnit(unit string) float64 {
	switch u := strings.ToLower(unit); {
	case u == "kg" || strings.HasPrefix(u, "kilo"):
		return 1000
	case u == "oz" || strings.HasPrefix(u, "ounce"):
		return 28.35
	case strings.HasPrefix(u, "lb") || strings.HasPrefix(u, "pound"):
		return 453.59
	case strings.HasPrefix(u, "cup"):
		return 240
	case strings.HasPrefix(u, "tbsp") || strings.HasPrefix(u, "tablespoon"):
		return 15
	case strings.HasPrefix(u, "tsp") || strings.HasPrefix(u, "teaspoon"):
		return 5
	case strings.HasPrefix(u, "dose") || strings.HasPrefix(u, "serving") || strings.HasPrefix(u, "scoop"):
		return 30
	default:
		return 1
	}
}

// parseAmount reads "150", "0.5", "1/2" or "1 1/2".
func parseAmount(s string) (float64, error) {
	whole := 0.0
	if fields := strings.Fields(s); len(fields) == 2 {
		w, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, err
		}
		whole, s = w, fields[1]
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		return whole + v, err
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("zero denominator in %q", s)
	}
	return whole + n/d, nil
}

func toGrams(match []string) (float64, bool) {
	value, err := parseAmount(match[1])
	if err != nil || value <= 0 {
		return 0, false
	}
	return value * gramsPerUnit(match[2]), true
}

// ExtractQuantity returns the first amount in text, converted to grams.
func ExtractQuantity(text string) (float64, bool) {
	for _, m := range quantityRe.FindAllStringSubmatch(text, -1) {
		if grams, ok := toGrams(m); ok {
			return grams, true
		}
	}
	return 0, false
}

// extractTargetQuantity prefers an amount introduced by "to", as in
// "increase rice to 150g", over the first amount in the line.
func extractTargetQuantity(text string) (float64, bool) {
	if m := toQuantityRe.FindStringSubmatch(text); m != nil {
		if grams, ok := toGrams(m); ok {
			return grams, true
		}
	}
	return ExtractQuantity(text)
}

// stripQuantities blanks out every amount so the remaining words can be
// read as a food name.
func stripQuantities(text string) string {
	return quantityRe.ReplaceAllString(text, " ")
}

// FormatGrams renders an amount for display, e.g. "150g" or "85.1g".
func FormatGrams(grams float64) string {
	return strconv.FormatFloat(math.Round(grams*10)/10, 'f', -1, 64) + "g"
}
