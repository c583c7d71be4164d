package session

import (
	"fmt"
	"regexp"
	"strings"
)

// productPatterns maps catalog product names to the spellings customers
// actually use, including common misspellings. Checked in order.
var productPatterns = []struct {
	name       string
	variations []string
}{
	{"Maracuyá", []string{"maracuya", "maracuyá", "passion", "parcha"}},
	{"Pave de Milo", []string{"milo", "chocolate", "choco", "cacao"}},
	{"Arequipe", []string{"arequipe", "areqipe", "dulce de leche", "manjar"}},
	{"Leche Klim", []string{"klim", "leche klim", "leche"}},
}

var sizePatterns = []struct {
	name       string
	variations []string
}{
	{"8 Onzas", []string{"8", "ocho", "chico", "pequeño", "small"}},
	{"16 Onzas", []string{"16", "dieciseis", "dieciséis", "grande", "large", "big"}},
}

var (
	quantityRe      = regexp.MustCompile(`\b(uno|una|dos|tres|cuatro|cinco|\d+)\b`)
	vagueSizeRe     = regexp.MustCompile(`\b(8|16|ocho|dieciséis|dieciseis|uno.*?8|otro.*?16|una.*?8|otra.*?16)\b`)
	sameAgainTokens = []string{"el mismo", "igual", "también", "otro igual"}
)

// ExtractProducts returns the catalog products mentioned in a message.
func ExtractProducts(message string) []string {
	lower := strings.ToLower(message)

	var detected []string
	for _, pattern := range productPatterns {
		for _, variation := range pattern.variations {
			if strings.Contains(lower, variation) {
				detected = appendUnique(detected, pattern.name)
				break
			}
		}
	}

	return detected
}

// ExtractSizes returns the serving sizes mentioned in a message.
func ExtractSizes(message string) []string {
	lower := strings.ToLower(message)

	var detected []string
	for _, pattern := range sizePatterns {
		for _, variation := range pattern.variations {
			if strings.Contains(lower, variation) {
				detected = appendUnique(detected, pattern.name)
				break
			}
		}
	}

	return detected
}

// ApplyMessage updates the context in place from one inbound message.
// The heuristics are deliberately cheap and local: they never touch the
// network and never rewrite what the user literally said.
func ApplyMessage(c *Context, message string) {
	products := ExtractProducts(message)
	if len(products) > 0 {
		c.DiscussedProducts = bound(products, maxDiscussedProducts)
		c.LastTopic = "eligiendo_productos"
	}

	sizes := ExtractSizes(message)
	if len(sizes) > 0 {
		c.MentionedSizes = sizes
		if len(products) > 0 {
			c.LastTopic = "especificando_tamaños"
		}
	}

	if len(products) == 0 && len(c.DiscussedProducts) > 0 &&
		quantityRe.MatchString(strings.ToLower(message)) {
		c.LastTopic = "especificando_cantidades"
	}
}

// InterpretVagueReference resolves bare sizes, quantities and "the same
// one" references against the discussed products. It returns an
// annotation for the model prompt, or "" when the message is explicit
// enough on its own.
func InterpretVagueReference(message string, c Context) string {
	lower := strings.ToLower(message)

	// A previous interpretation echoed back should not be reinterpreted.
	if strings.Contains(lower, "interpreto que quieres:") {
		return ""
	}

	var normalizedSizes []string
	for _, match := range vagueSizeRe.FindAllString(lower, -1) {
		switch {
		case strings.Contains(match, "8") || strings.Contains(match, "ocho"):
			normalizedSizes = append(normalizedSizes, "8oz")
		case strings.Contains(match, "16") || strings.Contains(match, "dieciséis") || strings.Contains(match, "dieciseis"):
			normalizedSizes = append(normalizedSizes, "16oz")
		}
	}

	explicitProducts := ExtractProducts(message)

	// Bare sizes with exactly one product in context resolve to that product.
	if len(normalizedSizes) > 0 && len(c.DiscussedProducts) == 1 && len(explicitProducts) == 0 {
		flavor := c.DiscussedProducts[0]
		pairs := make([]string, 0, len(normalizedSizes))
		for _, size := range normalizedSizes {
			pairs = append(pairs, flavor+" "+size)
		}
		return "Interpreto que quieres: " + strings.Join(pairs, ", ")
	}

	// Bare quantities with one product in context need a size.
	quantities := quantityRe.FindAllString(lower, -1)
	if len(quantities) > 0 && len(c.DiscussedProducts) == 1 &&
		len(explicitProducts) == 0 && len(normalizedSizes) == 0 {
		return fmt.Sprintf("Interpreto que quieres %s de %s, pero ¿de qué tamaño?",
			strings.Join(quantities, ", "), c.DiscussedProducts[0])
	}

	// Pronoun-style references repeat the last product.
	for _, token := range sameAgainTokens {
		if strings.Contains(lower, token) && len(c.DiscussedProducts) > 0 {
			return "Interpreto que quieres otro " + c.DiscussedProducts[0]
		}
	}

	return ""
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}

	return append(values, value)
}

func bound(values []string, limit int) []string {
	if len(values) <= limit {
		return values
	}

	return values[:limit]
}
