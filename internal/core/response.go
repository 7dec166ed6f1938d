package core

import (
	"regexp"
	"strings"
)

var (
	chatTagRe     = regexp.MustCompile(`(?s)<chat>\s*(.*?)\s*</chat>`)
	mealPlanTagRe = regexp.MustCompile(`(?s)<meal-plan>\s*(.*?)\s*</meal-plan>`)
)

// Reply is an assistant message split into its tagged sections.
type Reply struct {
	Chat         string `json:"chat"`
	MealPlan     string `json:"meal_plan"`
	Raw          string `json:"raw_response"`
	ParsingError bool   `json:"parsing_error"`
}

// SplitResponse extracts the <chat> and <meal-plan> sections. When either
// tag is missing the whole text is kept as the chat part and ParsingError
// is set.
func SplitResponse(text string) Reply {
	chat := chatTagRe.FindStringSubmatch(text)
	plan := mealPlanTagRe.FindStringSubmatch(text)
	if chat == nil || plan == nil {
		return Reply{Chat: strings.TrimSpace(text), Raw: text, ParsingError: true}
	}
	return Reply{
		Chat:     strings.TrimSpace(chat[1]),
		MealPlan: strings.TrimSpace(plan[1]),
		Raw:      text,
	}
}

// SuggestionText is the part of the reply the suggestion parser reads.
func (r Reply) SuggestionText() string {
	if r.ParsingError {
		return r.Raw
	}
	return r.MealPlan
}
