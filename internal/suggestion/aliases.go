package suggestion

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// builtinAliases map spelling variants to the name used in the catalog.
// An alias never makes a name more specific than what was written.
var builtinAliases = map[string]string{
	"evoo":                   "olive oil",
	"extra virgin olive oil": "olive oil",
	"yoghurt":                "yogurt",
	"greek yoghurt":          "greek yogurt",
	"garbanzo beans":         "chickpeas",
	"garbanzos":              "chickpeas",
	"chick peas":             "chickpeas",
	"aubergine":              "eggplant",
	"courgette":              "zucchini",
	"capsicum":               "bell pepper",
	"prawns":                 "shrimp",
	"porridge":               "oatmeal",
	"rolled oats":            "oatmeal",
	"sweet potatoes":         "sweet potato",
	"veggies":                "vegetables",
	"mixed veggies":          "mixed vegetables",
	"pb":                     "peanut butter",
}

// mealSynonyms map words found in text to canonical meal names.
var mealSynonyms = map[string]string{
	"breakfast": "Breakfast",
	"lunch":     "Lunch",
	"snack":     "Snack",
	"snacks":    "Snack",
	"dinner":    "Dinner",
	"supper":    "Dinner",
}

type alias struct {
	from string
	to   string
	re   *regexp.Regexp
}

// compileAliases orders aliases longest first so "greek yoghurt" wins over
// "yoghurt"; ties are broken alphabetically to keep parsing deterministic.
func compileAliases(table map[string]string) []alias {
	out := make([]alias, 0, len(table))
	for from, to := range table {
		from = strings.ToLower(strings.TrimSpace(from))
		to = strings.ToLower(strings.TrimSpace(to))
		if from == "" || to == "" {
			continue
		}
		out = append(out, alias{
			from: from,
			to:   to,
			re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(from) + `\b`),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].from) != len(out[j].from) {
			return len(out[i].from) > len(out[j].from)
		}
		return out[i].from < out[j].from
	})
	return out
}

type aliasFile struct {
	Aliases map[string]string `toml:"aliases"`
}

// LoadAliases reads extra food aliases from a TOML file of the form
//
//	[aliases]
//	"evoo" = "olive oil"
func LoadAliases(path string) (map[string]string, error) {
	var f aliasFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to decode alias file %s: %w", path, err)
	}
	if f.Aliases == nil {
		f.Aliases = map[string]string{}
	}
	return f.Aliases, nil
}
