package comparables

import "strings"

// aliasEntry keeps alias tables ordered so lookups are deterministic.
type aliasEntry struct {
	canonical string
	aliases   []string
}

var brandAliases = []aliasEntry{
	{"nike", []string{"nike", "just do it"}},
	{"adidas", []string{"adidas", "three stripes"}},
	{"zara", []string{"zara", "zara man", "zara woman"}},
	{"h&m", []string{"h&m", "hm", "hennes mauritz"}},
	{"uniqlo", []string{"uniqlo", "uniqlo u"}},
}

var typeAliases = []aliasEntry{
	{"felpa", []string{"felpa", "hoodie", "sweatshirt", "pullover"}},
	{"t-shirt", []string{"t-shirt", "tshirt", "maglietta", "maglia"}},
	{"jeans", []string{"jeans", "denim", "pantaloni"}},
	{"scarpe", []string{"scarpe", "scarpa", "sneakers", "tennis", "shoes"}},
	{"giacca", []string{"giacca", "giacche", "giaccone", "giubbotto", "jacket"}},
	{"camicia", []string{"camicia", "shirt", "button down"}},
}

// NormalizeBrand lower-cases brand and maps known aliases to the main brand.
// An alias matches when it appears as a whole word in the input.
func NormalizeBrand(brand string) string {
	return normalize(brand, brandAliases)
}

// NormalizeItemType lower-cases itemType and maps known aliases to the
// canonical catalog type.
func NormalizeItemType(itemType string) string {
	return normalize(itemType, typeAliases)
}

func normalize(raw string, table []aliasEntry) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return ""
	}
	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == '/' || r == ',' || r == '_'
	})
	padded := " " + strings.Join(words, " ") + " "

	for _, entry := range table {
		for _, alias := range entry.aliases {
			if strings.Contains(padded, " "+alias+" ") {
				return entry.canonical
			}
		}
	}
	return normalized
}
