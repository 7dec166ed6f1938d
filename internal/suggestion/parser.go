package suggestion

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultNewMealName is used when a new-meal line does not name the meal.
const DefaultNewMealName = "New Meal"

// fallbackMeal receives food lines seen before any meal header.
const fallbackMeal = "Breakfast"

const (
	foodLineConfidence = 0.8
	newMealConfidence  = 0.7
)

var (
	addRe       = regexp.MustCompile(`\b(?:add(?:\s+in)?|include|put|place)\b`)
	replaceRe   = regexp.MustCompile(`\b(?:replace|substitute|swap|change)\b|\binstead\s+of\b`)
	deleteRe    = regexp.MustCompile(`\b(?:remove|delete|eliminate|omit)\b|\btake\s+out\b`)
	modifyRe    = regexp.MustCompile(`\b(?:increase|decrease|reduce|more|less)\b|\bchange\s+to\b`)
	newMealRe   = regexp.MustCompile(`\b(?:(?:add|create)\s+(?:a\s+)?(?:new\s+)?meal|new\s+meal|another\s+meal)\b`)
	decisiveRe  = regexp.MustCompile(`\b(?:add|replace|substitute|swap|remove|delete|eliminate|omit|increase|decrease|reduce)\b`)
	mealWordRe  = regexp.MustCompile(`\b(?:breakfast|lunch|snacks?|dinner|supper)\b`)
	foodLineRe  = regexp.MustCompile(`(?i)^(.+?)\s*\((\d[^)]*)\)\s*:\s*(\d+(?:\.\d+)?)\s*kcal\b`)
	bulletRe    = regexp.MustCompile(`^(?:[-+•>]\s*)+|^\d+[.)]\s+`)
	parenRe     = regexp.MustCompile(`\([^)]*\)`)
	headerPreRe = regexp.MustCompile(`^(?:updated|revised|new|modified)\s+`)
	kcalTailRe  = regexp.MustCompile(`\s*[-–:]?\s*\d+(?:\.\d+)?\s*(?:kcal|calories|cal)$`)

	withRe          = regexp.MustCompile(`\b(?:replace|swap|change|substitute|exchange)\s+(.+?)\s+with\s+(.+)$`)
	substituteForRe = regexp.MustCompile(`\bsubstitute\s+(.+?)\s+for\s+(.+)$`)
	swapForRe       = regexp.MustCompile(`\b(?:swap|change|replace|exchange)\s+(.+?)\s+for\s+(.+)$`)
	insteadRe       = regexp.MustCompile(`^(.*?)\s*\binstead\s+of\s+(.+)$`)

	mealCalledRe = regexp.MustCompile(`(?i)\b(?:called|named)\s+["']?([^"',.:;]+?)["']?\s*(?:\bwith\b|[,.:;]|$)`)
	mealColonRe  = regexp.MustCompile(`(?i)\bmeals?\s*:\s*([^,.;]+?)\s*(?:\bwith\b|[,.;]|$)`)
	withListRe   = regexp.MustCompile(`\bwith\s+(.+)$`)
	listSplitRe  = regexp.MustCompile(`\s*(?:,|&|\band\b)\s*`)
)

// leadFillers are skipped before a food name starts.
var leadFillers = map[string]bool{
	"a": true, "an": true, "the": true, "some": true, "of": true, "about": true,
	"approximately": true, "around": true, "roughly": true, "extra": true,
	"additional": true, "another": true, "new": true, "more": true, "less": true,
	"your": true, "my": true, "use": true, "have": true, "try": true, "eat": true,
	"also": true, "just": true, "fresh": true, "little": true, "bit": true,
	"handful": true, "slice": true, "slices": true, "piece": true, "pieces": true,
	"portion": true, "portions": true, "bowl": true, "glass": true,
	"cup": true, "cups": true, "serving": true, "servings": true, "scoop": true,
	"scoops": true, "tbsp": true, "tsp": true, "g": true, "grams": true,
	"breakfast": true, "lunch": true, "snack": true, "snacks": true,
	"dinner": true, "supper": true,
}

// stopWords end a food name.
var stopWords = map[string]bool{
	"to": true, "in": true, "into": true, "for": true, "from": true, "at": true,
	"on": true, "with": true, "instead": true, "by": true, "as": true,
	"during": true, "per": true,
}

const maxFoodWords = 3

type Option func(*parserConfig)

type parserConfig struct {
	aliases map[string]string
}

// WithAliases adds food aliases on top of the built-in table.
func WithAliases(table map[string]string) Option {
	return func(c *parserConfig) {
		for from, to := range table {
			c.aliases[from] = to
		}
	}
}

// Parser turns assistant text into changes. It holds no per-call state and
// is safe for concurrent use.
type Parser struct {
	aliases []alias
}

func NewParser(opts ...Option) *Parser {
	cfg := parserConfig{aliases: make(map[string]string, len(builtinAliases))}
	for from, to := range builtinAliases {
		cfg.aliases[from] = to
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Parser{aliases: compileAliases(cfg.aliases)}
}

var defaultParser = NewParser()

// Parse runs the built-in parser over text.
func Parse(text string) Parsed {
	return defaultParser.Parse(text)
}

type namedMeal struct {
	name  string
	lower string
	re    *regexp.Regexp
}

// Parse reads text line by line. Meal headers set the target for the lines
// that follow; other lines are classified by the first matching rule. Lines
// that match nothing are dropped. meals lists plan-specific meal names that
// are recognised in addition to Breakfast, Lunch, Snack and Dinner.
func (p *Parser) Parse(text string, meals ...string) Parsed {
	result := Parsed{Changes: []Change{}, RawText: text}
	known := compileMeals(meals)

	register := ""
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		clean := cleanLine(raw)
		if clean == "" {
			continue
		}
		if meal, ok := headerMeal(clean, known); ok {
			register = meal
			continue
		}
		if c, ok := p.classify(raw, clean, register, known); ok {
			result.Changes = append(result.Changes, c)
		}
	}

	if len(result.Changes) > 0 {
		var sum float64
		for _, c := range result.Changes {
			sum += c.Metadata().Confidence
		}
		result.OverallConfidence = sum / float64(len(result.Changes))
	}
	return result
}

func (p *Parser) classify(raw, clean, register string, meals []namedMeal) (Change, bool) {
	lower := strings.ToLower(clean)

	if loc := addRe.FindStringIndex(lower); loc != nil {
		if c, ok := p.parseAdd(raw, lower, lower[loc[1]:], register, meals); ok {
			return c, true
		}
	}
	if replaceRe.MatchString(lower) {
		return p.parseReplace(raw, lower, register, meals)
	}
	if loc := deleteRe.FindStringIndex(lower); loc != nil {
		return p.parseDelete(raw, lower, lower[loc[1]:], register, meals), true
	}
	if loc := modifyRe.FindStringIndex(lower); loc != nil {
		if grams, ok := extractTargetQuantity(lower); ok {
			return p.parseModify(raw, lower, loc, grams, register, meals), true
		}
	}
	if newMealRe.MatchString(lower) {
		return p.parseNewMeal(raw, clean, lower), true
	}
	if m := foodLineRe.FindStringSubmatch(clean); m != nil {
		return p.parseFoodLine(raw, m, register, meals)
	}
	return nil, false
}

func (p *Parser) parseAdd(raw, lower, segment, register string, meals []namedMeal) (Change, bool) {
	// "add a new meal ..." belongs to the new-meal rule.
	if startsWithMeal(segment) {
		return nil, false
	}
	food := p.foodName(segment)
	if food == "" {
		return nil, false
	}
	grams, hasQty := ExtractQuantity(lower)
	if !hasQty {
		grams = DefaultQuantityGrams
	}
	meal := targetMeal(lower, register, meals)
	return Add{
		Meta:          Meta{Confidence: lineConfidence(true, meal != "", hasQty, decisiveRe.MatchString(lower)), OriginalText: raw},
		TargetMeal:    meal,
		FoodName:      food,
		QuantityGrams: grams,
	}, true
}

func (p *Parser) parseReplace(raw, lower, register string, meals []namedMeal) (Change, bool) {
	var original, replacement string
	switch {
	case withRe.MatchString(lower):
		m := withRe.FindStringSubmatch(lower)
		original, replacement = m[1], m[2]
	case substituteForRe.MatchString(lower):
		m := substituteForRe.FindStringSubmatch(lower)
		original, replacement = m[2], m[1]
	case swapForRe.MatchString(lower):
		m := swapForRe.FindStringSubmatch(lower)
		original, replacement = m[1], m[2]
	case insteadRe.MatchString(lower):
		m := insteadRe.FindStringSubmatch(lower)
		original, replacement = m[2], m[1]
	default:
		return nil, false
	}

	originalName := p.foodName(original)
	newName := p.foodName(replacement)
	if originalName == "" || newName == "" {
		return nil, false
	}

	grams, hasQty := ExtractQuantity(replacement)
	if !hasQty {
		grams = DefaultQuantityGrams
	}
	meal := targetMeal(lower, register, meals)
	return Replace{
		Meta:             Meta{Confidence: lineConfidence(true, meal != "", hasQty, decisiveRe.MatchString(lower)), OriginalText: raw},
		TargetMeal:       meal,
		OriginalFoodName: originalName,
		FoodName:         newName,
		QuantityGrams:    grams,
	}, true
}

func (p *Parser) parseDelete(raw, lower, segment, register string, meals []namedMeal) Change {
	food := p.foodName(segment)
	_, hasQty := ExtractQuantity(lower)
	meal := targetMeal(lower, register, meals)
	return Delete{
		Meta:       Meta{Confidence: lineConfidence(food != "", meal != "", hasQty, decisiveRe.MatchString(lower)), OriginalText: raw},
		TargetMeal: meal,
		FoodName:   food,
	}
}

func (p *Parser) parseModify(raw, lower string, loc []int, grams float64, register string, meals []namedMeal) Change {
	food := p.foodName(lower[loc[1]:])
	if food == "" {
		// "Chicken breast: increase to 200g"
		food = p.foodName(lower[:loc[0]])
	}
	meal := targetMeal(lower, register, meals)
	return ModifyQuantity{
		Meta:          Meta{Confidence: lineConfidence(food != "", meal != "", true, decisiveRe.MatchString(lower)), OriginalText: raw},
		TargetMeal:    meal,
		FoodName:      food,
		QuantityGrams: grams,
	}
}

func (p *Parser) parseNewMeal(raw, clean, lower string) Change {
	name := ""
	if m := mealCalledRe.FindStringSubmatch(clean); m != nil {
		name = m[1]
	} else if m := mealColonRe.FindStringSubmatch(clean); m != nil {
		name = m[1]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultNewMealName
	} else {
		name = cases.Title(language.English).String(strings.ToLower(name))
	}

	foods := []FoodPortion{}
	if m := withListRe.FindStringSubmatch(lower); m != nil {
		for _, part := range listSplitRe.Split(m[1], -1) {
			food := p.foodName(part)
			if food == "" {
				continue
			}
			grams, ok := ExtractQuantity(part)
			if !ok {
				grams = DefaultQuantityGrams
			}
			foods = append(foods, FoodPortion{Name: food, QuantityGrams: grams})
		}
	}

	return AddMeal{
		Meta:     Meta{Confidence: newMealConfidence, OriginalText: raw},
		MealName: name,
		Foods:    foods,
	}
}

// parseFoodLine handles plan listings such as "Quinoa (100g): 120 kcal",
// optionally prefixed with the meal: "Lunch: Quinoa (100g): 120 kcal".
func (p *Parser) parseFoodLine(raw string, m []string, register string, meals []namedMeal) (Change, bool) {
	name := m[1]
	meal := register
	if i := strings.LastIndex(name, ":"); i >= 0 {
		if prefix, ok := headerMeal(strings.TrimSpace(name[:i]), meals); ok {
			meal = prefix
		}
		name = name[i+1:]
	}
	name = p.canonicalName(strings.ToLower(strings.TrimSpace(name)))
	if name == "" {
		return nil, false
	}
	if meal == "" {
		meal = fallbackMeal
	}
	grams, ok := ExtractQuantity(m[2])
	if !ok {
		grams = DefaultQuantityGrams
	}
	return Add{
		Meta:          Meta{Confidence: foodLineConfidence, OriginalText: raw},
		TargetMeal:    meal,
		FoodName:      name,
		QuantityGrams: grams,
	}, true
}

// foodName reads a food name from the words following an action keyword:
// amounts are dropped, leading fillers skipped, and the name ends at a
// preposition or punctuation. A known alias inside that span wins; otherwise
// the first one to three words are used.
func (p *Parser) foodName(segment string) string {
	segment = stripQuantities(strings.ToLower(segment))
	if i := strings.IndexAny(segment, ",.;:!?()[]\"/"); i >= 0 {
		segment = segment[:i]
	}

	var words []string
	for _, w := range strings.Fields(segment) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if w == "" {
			continue
		}
		if stopWords[w] {
			break
		}
		if len(words) == 0 && leadFillers[w] {
			continue
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return ""
	}

	span := strings.Join(words, " ")
	for _, a := range p.aliases {
		if a.re.MatchString(span) {
			return a.to
		}
	}
	if len(words) > maxFoodWords {
		words = words[:maxFoodWords]
	}
	return strings.Join(words, " ")
}

// canonicalName maps a complete food name through the alias table.
func (p *Parser) canonicalName(name string) string {
	for _, a := range p.aliases {
		if a.from == name {
			return a.to
		}
	}
	return name
}

func startsWithMeal(segment string) bool {
	for _, w := range strings.Fields(segment) {
		w = strings.Trim(w, ":,.")
		switch w {
		case "a", "an", "the", "new", "another", "additional", "extra", "separate":
			continue
		case "meal", "meals":
			return true
		default:
			return false
		}
	}
	return false
}

// targetMeal returns the leftmost meal named in the line, else the register.
func targetMeal(lower, register string, meals []namedMeal) string {
	best, bestAt := "", -1
	if loc := mealWordRe.FindStringIndex(lower); loc != nil {
		best, bestAt = mealSynonyms[lower[loc[0]:loc[1]]], loc[0]
	}
	for _, m := range meals {
		if loc := m.re.FindStringIndex(lower); loc != nil && (bestAt < 0 || loc[0] < bestAt) {
			best, bestAt = m.name, loc[0]
		}
	}
	if best != "" {
		return best
	}
	return register
}

// headerMeal reports whether a cleaned line only announces a meal section,
// as in "Breakfast", "Updated Lunch:" or "Dinner (7pm) - 650 kcal".
func headerMeal(clean string, meals []namedMeal) (string, bool) {
	s := strings.ToLower(clean)
	s = parenRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = kcalTailRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ":-–"))
	s = headerPreRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSuffix(s, " meal")
	if s == "" {
		return "", false
	}
	if canonical, ok := mealSynonyms[s]; ok {
		return canonical, true
	}
	for _, m := range meals {
		if m.lower == s {
			return m.name, true
		}
	}
	return "", false
}

func compileMeals(names []string) []namedMeal {
	out := make([]namedMeal, 0, len(names))
	for _, name := range names {
		name = cleanLine(name)
		lower := strings.ToLower(name)
		if lower == "" {
			continue
		}
		if _, builtin := mealSynonyms[lower]; builtin {
			continue
		}
		out = append(out, namedMeal{
			name:  name,
			lower: lower,
			re:    regexp.MustCompile(`\b` + regexp.QuoteMeta(lower) + `\b`),
		})
	}
	return out
}

// cleanLine strips markdown bullets and emphasis, emoji and extra spaces.
func cleanLine(line string) string {
	line = norm.NFKC.String(line)
	line = strings.Map(func(r rune) rune {
		switch {
		case r == '*' || r == '_' || r == '#' || r == '`' || r == '~':
			return -1
		case r == '\u200d' || r == '\ufe0f':
			return -1
		case unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r):
			return -1
		}
		return r
	}, line)
	line = bulletRe.ReplaceAllString(strings.TrimSpace(line), "")
	return strings.Join(strings.Fields(line), " ")
}

func lineConfidence(food, meal, quantity, decisive bool) float64 {
	c := 0.5
	if food {
		c += 0.3
	}
	if meal {
		c += 0.2
	}
	if quantity {
		c += 0.1
	}
	if decisive {
		c += 0.1
	}
	return math.Min(math.Round(c*100)/100, 1)
}
