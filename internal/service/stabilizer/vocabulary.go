package stabilizer

import "purescan/internal/model"

// GenericLabel is shown for allowed classes without a display mapping.
const GenericLabel = "Food item"

// Vocabulary is the closed set of detector classes worth showing and the names
// they are shown under.
type Vocabulary struct {
	allowed  map[string]struct{}
	display  map[string]string
	fallback string
}

// NewVocabulary allows every class in allowed. display may collapse several
// classes into one name; anything it lacks is shown as fallback.
func NewVocabulary(allowed []string, display map[string]string, fallback string) *Vocabulary {
	v := &Vocabulary{
		allowed:  make(map[string]struct{}, len(allowed)),
		display:  make(map[string]string, len(display)),
		fallback: fallback,
	}
	for _, label := range allowed {
		v.allowed[label] = struct{}{}
	}
	for raw, shown := range display {
		v.display[raw] = shown
	}
	if v.fallback == "" {
		v.fallback = GenericLabel
	}
	return v
}

// FoodVocabulary covers the COCO classes that are food or hold food.
func FoodVocabulary() *Vocabulary {
	return NewVocabulary(
		[]string{
			"banana", "apple", "orange", "broccoli", "carrot",
			"sandwich", "hot dog", "pizza", "donut", "cake",
			"bowl", "cup", "bottle", "wine glass",
		},
		map[string]string{
			"banana":     "Banana",
			"apple":      "Apple",
			"orange":     "Citrus",
			"broccoli":   "Vegetable",
			"carrot":     "Vegetable",
			"sandwich":   "Prepared meal",
			"hot dog":    "Prepared meal",
			"pizza":      "Prepared meal",
			"donut":      "Pastry",
			"cake":       "Pastry",
			"cup":        "Beverage",
			"bottle":     "Beverage",
			"wine glass": "Beverage",
		},
		GenericLabel,
	)
}

func (v *Vocabulary) Allowed(label string) bool {
	_, ok := v.allowed[label]
	return ok
}

// Display translates a raw class label for the overlay.
func (v *Vocabulary) Display(label string) string {
	if shown, ok := v.display[label]; ok {
		return shown
	}
	return v.fallback
}

// Filter returns the allowed detections in a new slice.
func (v *Vocabulary) Filter(detections []model.Detection) []model.Detection {
	out := make([]model.Detection, 0, len(detections))
	for _, d := range detections {
		if v.Allowed(d.Label) {
			out = append(out, d)
		}
	}
	return out
}
