package rci

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
)

const (
	//MaxScore is the score of a road segment without any recorded defects
	MaxScore float64 = 10.0
	//MinScore is the lower bound of the road condition index
	MinScore float64 = 0.0
	//UrgentThreshold is the score at or below which a segment is considered urgent
	UrgentThreshold float64 = 3.5
)

// Category is the penalty rule a defect type resolves to
type Category string

const (
	CategoryPothole Category = "pothole"
	CategoryCrack   Category = "crack"
	CategoryRutting Category = "rutting"
	CategoryOther   Category = "other"
)

var categoryPriority = []Category{CategoryPothole, CategoryCrack, CategoryRutting}

// CategoryOf resolves a free form defect type to a penalty category using a case
// insensitive prefix match. The first matching category in priority order wins.
func CategoryOf(defectType string) Category {
	t := strings.ToLower(defectType)
	for _, c := range categoryPriority {
		if strings.HasPrefix(t, string(c)) {
			return c
		}
	}
	return CategoryOther
}

// Weights holds the tunable constants of the penalty formula
type Weights struct {
	Pothole       float64 `yaml:"pothole"`
	Crack         float64 `yaml:"crack"`
	RuttingBase   float64 `yaml:"ruttingBase"`
	RuttingFactor float64 `yaml:"ruttingFactor"`
	DefaultBase   float64 `yaml:"defaultBase"`
	DefaultFactor float64 `yaml:"defaultFactor"`
}

// DefaultWeights returns the weights the index has always been calculated with
func DefaultWeights() Weights {
	return Weights{
		Pothole:       0.8,
		Crack:         0.5,
		RuttingBase:   0.7,
		RuttingFactor: 0.7,
		DefaultBase:   0.5,
		DefaultFactor: 0.4,
	}
}

// LoadWeights reads a YAML document and applies it on top of the default weights.
// Keys missing from the document keep their default value.
func LoadWeights(r io.Reader) (Weights, error) {
	w := DefaultWeights()

	err := yaml.NewDecoder(r).Decode(&w)
	if err != nil && err != io.EOF {
		return DefaultWeights(), fmt.Errorf("failed to decode rci weights: %w", err)
	}

	for name, value := range map[string]float64{
		"pothole": w.Pothole, "crack": w.Crack,
		"ruttingBase": w.RuttingBase, "ruttingFactor": w.RuttingFactor,
		"defaultBase": w.DefaultBase, "defaultFactor": w.DefaultFactor,
	} {
		if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return DefaultWeights(), fmt.Errorf("rci weight %s must be a finite non negative number, got %v", name, value)
		}
	}

	return w, nil
}

// Calculator maps the defects of a single inspection to a road condition index
type Calculator struct {
	weights Weights
}

// NewCalculator creates a calculator using the provided weights
func NewCalculator(w Weights) *Calculator {
	return &Calculator{weights: w}
}

// Weights returns the weights used by this calculator
func (c *Calculator) Weights() Weights {
	return c.weights
}

// Penalty returns how much a single defect subtracts from the maximum score
func (c *Calculator) Penalty(d persistence.Defect) float64 {
	severity := float64(d.Severity)

	switch CategoryOf(d.DefectType) {
	case CategoryPothole:
		return severity * (atLeastOne(d.DepthCM) / 10) * c.weights.Pothole
	case CategoryCrack:
		return severity * (atLeastOne(d.LengthM) / 10) * c.weights.Crack
	case CategoryRutting:
		return severity * c.weights.RuttingBase * c.weights.RuttingFactor
	default:
		return severity * c.weights.DefaultBase * c.weights.DefaultFactor
	}
}

// Score sums the penalties of all defects, subtracts them from the maximum score
// and returns the clamped result rounded to one decimal
func (c *Calculator) Score(defects []persistence.Defect) float64 {
	penalty := 0.0
	for _, d := range defects {
		penalty += c.Penalty(d)
	}

	return Round(math.Max(MinScore, math.Min(MaxScore, MaxScore-penalty)))
}

// Round rounds a score to one decimal, with halves rounded away from zero
func Round(score float64) float64 {
	return math.Round(score*10) / 10
}

// IsUrgent returns true if a score is at or below the urgency threshold
func IsUrgent(score float64) bool {
	return score <= UrgentThreshold
}

// unmeasured (or zero) dimensions still cost something
func atLeastOne(measurement *float64) float64 {
	if measurement == nil {
		return 1
	}
	return math.Max(*measurement, 1)
}
