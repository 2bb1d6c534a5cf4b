package config

import (
	"math"

	"gopkg.in/yaml.v3"
)

// Tier is the half-open price interval [Low, High). The terminal tier has
// High = +Inf.
type Tier struct {
	Name string  `yaml:"name"`
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Contains reports whether price lies in [Low, High).
func (t Tier) Contains(price float64) bool {
	return price >= t.Low && price < t.High
}

// UnmarshalYAML treats an omitted high bound as +Inf.
func (t *Tier) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Name string   `yaml:"name"`
		Low  float64  `yaml:"low"`
		High *float64 `yaml:"high"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	t.Name = aux.Name
	t.Low = aux.Low
	t.High = math.Inf(1)
	if aux.High != nil {
		t.High = *aux.High
	}
	return nil
}

// MarshalYAML omits an infinite high bound.
func (t Tier) MarshalYAML() (interface{}, error) {
	out := map[string]interface{}{"name": t.Name, "low": t.Low}
	if !math.IsInf(t.High, 1) {
		out["high"] = t.High
	}
	return out, nil
}

// Tiers is an ordered list of price tiers.
type Tiers []Tier

// Lookup returns the name of the first tier whose interval contains price.
// When no interval matches (a negative price, NaN, or a gap in a custom
// layout) the last tier is returned. This catch-all is deliberate and must
// not be replaced by a nearest-bound search.
func (ts Tiers) Lookup(price float64) string {
	for _, t := range ts {
		if t.Contains(price) {
			return t.Name
		}
	}
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1].Name
}

// Names returns the tier names in order.
func (ts Tiers) Names() []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return names
}

// DefaultTiers returns the eight residential price tiers.
func DefaultTiers() Tiers {
	return Tiers{
		{Name: "very_low", Low: 0, High: 200_000},
		{Name: "low", Low: 200_000, High: 300_000},
		{Name: "lower_mid", Low: 300_000, High: 400_000},
		{Name: "mid", Low: 400_000, High: 500_000},
		{Name: "upper_mid", Low: 500_000, High: 650_000},
		{Name: "high", Low: 650_000, High: 850_000},
		{Name: "very_high", Low: 850_000, High: 1_500_000},
		{Name: "ultra_high", Low: 1_500_000, High: math.Inf(1)},
	}
}
