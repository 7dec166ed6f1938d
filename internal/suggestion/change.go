package suggestion

import (
	"encoding/json"
	"fmt"
)

// Meta is shared by every change variant.
type Meta struct {
	Confidence   float64 `json:"confidence"`
	OriginalText string  `json:"original_text"`
}

// Metadata returns the confidence and source line of a change.
func (m Meta) Metadata() Meta { return m }

// Change is one structured edit derived from assistant text. The variant set
// is closed: Add, Replace, Delete, ModifyQuantity and AddMeal.
type Change interface {
	Metadata() Meta
	sealed()
}

type Add struct {
	Meta
	TargetMeal    string  `json:"target_meal"`
	FoodName      string  `json:"food_name"`
	QuantityGrams float64 `json:"quantity_grams"`
}

type Replace struct {
	Meta
	TargetMeal       string  `json:"target_meal"`
	OriginalFoodName string  `json:"original_food_name"`
	FoodName         string  `json:"food_name"`
	QuantityGrams    float64 `json:"quantity_grams"`
}

type Delete struct {
	Meta
	TargetMeal string `json:"target_meal"`
	FoodName   string `json:"food_name"`
}

type ModifyQuantity struct {
	Meta
	TargetMeal    string  `json:"target_meal"`
	FoodName      string  `json:"food_name"`
	QuantityGrams float64 `json:"quantity_grams"`
}

type FoodPortion struct {
	Name          string  `json:"name"`
	QuantityGrams float64 `json:"quantity_grams"`
}

type AddMeal struct {
	Meta
	MealName string        `json:"meal_name"`
	Foods    []FoodPortion `json:"foods"`
}

func (Add) sealed()            {}
func (Replace) sealed()        {}
func (Delete) sealed()         {}
func (ModifyQuantity) sealed() {}
func (AddMeal) sealed()        {}

// Visitor handles every change variant. Consumers implement it instead of
// switching on concrete types, so adding a variant breaks every consumer
// that does not handle it yet.
type Visitor[T any] interface {
	VisitAdd(Add) T
	VisitReplace(Replace) T
	VisitDelete(Delete) T
	VisitModifyQuantity(ModifyQuantity) T
	VisitAddMeal(AddMeal) T
}

// Visit dispatches c to the matching method of v.
func Visit[T any](c Change, v Visitor[T]) T {
	switch c := c.(type) {
	case Add:
		return v.VisitAdd(c)
	case Replace:
		return v.VisitReplace(c)
	case Delete:
		return v.VisitDelete(c)
	case ModifyQuantity:
		return v.VisitModifyQuantity(c)
	case AddMeal:
		return v.VisitAddMeal(c)
	default:
		panic(fmt.Sprintf("suggestion: unknown change type %T", c))
	}
}

const (
	KindAdd            = "add"
	KindReplace        = "replace"
	KindDelete         = "delete"
	KindModifyQuantity = "modify_quantity"
	KindAddMeal        = "add_meal"
)

type kindVisitor struct{}

func (kindVisitor) VisitAdd(Add) string                       { return KindAdd }
func (kindVisitor) VisitReplace(Replace) string               { return KindReplace }
func (kindVisitor) VisitDelete(Delete) string                 { return KindDelete }
func (kindVisitor) VisitModifyQuantity(ModifyQuantity) string { return KindModifyQuantity }
func (kindVisitor) VisitAddMeal(AddMeal) string               { return KindAddMeal }

// Kind names the variant of c.
func Kind(c Change) string {
	return Visit[string](c, kindVisitor{})
}

// jsonVisitor flattens a variant and its kind into one object.
type jsonVisitor struct{}

func (jsonVisitor) VisitAdd(c Add) any {
	return struct {
		Kind string `json:"kind"`
		Add
	}{KindAdd, c}
}

func (jsonVisitor) VisitReplace(c Replace) any {
	return struct {
		Kind string `json:"kind"`
		Replace
	}{KindReplace, c}
}

func (jsonVisitor) VisitDelete(c Delete) any {
	return struct {
		Kind string `json:"kind"`
		Delete
	}{KindDelete, c}
}

func (jsonVisitor) VisitModifyQuantity(c ModifyQuantity) any {
	return struct {
		Kind string `json:"kind"`
		ModifyQuantity
	}{KindModifyQuantity, c}
}

func (jsonVisitor) VisitAddMeal(c AddMeal) any {
	return struct {
		Kind string `json:"kind"`
		AddMeal
	}{KindAddMeal, c}
}

// MarshalChange encodes c as a JSON object tagged with its kind.
func MarshalChange(c Change) ([]byte, error) {
	return json.Marshal(Visit[any](c, jsonVisitor{}))
}

// Parsed is the result of parsing one assistant response.
type Parsed struct {
	Changes           []Change
	OverallConfidence float64
	RawText           string
}

func (p Parsed) MarshalJSON() ([]byte, error) {
	changes := make([]json.RawMessage, 0, len(p.Changes))
	for _, c := range p.Changes {
		b, err := MarshalChange(c)
		if err != nil {
			return nil, err
		}
		changes = append(changes, b)
	}
	return json.Marshal(struct {
		Changes           []json.RawMessage `json:"changes"`
		OverallConfidence float64           `json:"overall_confidence"`
		RawText           string            `json:"raw_text"`
	}{changes, p.OverallConfidence, p.RawText})
}
