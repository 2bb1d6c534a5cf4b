package config

// Feature group names
const (
	GroupBase         = "base"
	GroupCensus       = "census"
	GroupPolitical    = "political"
	GroupImageBoolean = "image_boolean"
	GroupEngineered   = "engineered"
)

// Canonical feature names used by feature engineering.
const (
	FeaturePrice        = "price"
	FeatureLivingSqft   = "living_sqft"
	FeatureLotSqft      = "lot_sqft"
	FeatureYearBuilt    = "year_built"
	FeatureBedrooms     = "bedrooms"
	FeatureGarageSpaces = "garage_spaces"

	FeatureSqftPerBedroom   = "sqft_per_bedroom"
	FeatureLotToLivingRatio = "lot_to_living_ratio"
	FeaturePropertyAge      = "property_age"
	FeatureHasGarage        = "has_garage"
	FeatureLogSqft          = "log_sqft"
)

// FeatureGroup is a named, fixed list of canonical feature names.
type FeatureGroup struct {
	Name     string   `yaml:"name"`
	Features []string `yaml:"features"`
}

// DefaultColumnMappings maps canonical names to the column names of the MLS
// export. Canonical names not listed map to themselves.
func DefaultColumnMappings() map[string]string {
	return map[string]string{
		FeatureLivingSqft:   "sumlivingareasqft",
		FeatureLotSqft:      "lotsizesqft",
		FeatureYearBuilt:    "yearbuilt",
		FeatureBedrooms:     "bedrooms",
		"full_baths":        "bathfull",
		"half_baths":        "bathspartialnbr",
		FeatureGarageSpaces: "garageparkingnbr",
		"latitude":          "situslatitude",
		"longitude":         "situslongitude",
		"fireplace_code":    "fireplacecode",
		FeaturePrice:        "currentsalesprice",
	}
}

// DefaultFeatureGroups returns the taxonomy in resolution order.
func DefaultFeatureGroups() []FeatureGroup {
	return []FeatureGroup{
		{Name: GroupBase, Features: []string{
			FeatureLivingSqft, FeatureLotSqft, FeatureYearBuilt, FeatureBedrooms,
			"full_baths", "half_baths", FeatureGarageSpaces,
			"latitude", "longitude", "fireplace_code",
		}},
		{Name: GroupCensus, Features: []string{
			"pct_bachelors_degree", "median_household_income", "median_home_value",
			"pct_owner_occupied", "unemployment_rate", "median_age",
			"poverty_rate", "median_gross_rent", "median_earnings_total",
		}},
		{Name: GroupPolitical, Features: []string{
			"per_gop", "per_dem", "per_point_diff",
		}},
		{Name: GroupImageBoolean, Features: []string{
			"has_hardwood_floors", "has_granite_countertops", "has_stainless_steel_appliances",
			"has_fireplace", "has_attached_two_car_garage", "has_vaulted_ceiling",
			"has_open_floor_plan", "has_updated_fixtures", "has_crown_molding",
			"has_double_vanity", "has_white_cabinetry", "has_recessed_lighting",
			"has_formal_dining_area", "has_curb_appeal", "has_covered_front_porch",
			"has_ceiling_fan", "has_neutral_paint", "has_tile_flooring",
			"has_good_natural_light", "has_mature_trees", "has_large_windows",
			"has_fenced_yard", "has_brick_facade", "has_driveway",
			"has_mature_landscaping",
		}},
		{Name: GroupEngineered, Features: []string{
			FeatureSqftPerBedroom, FeatureLotToLivingRatio, FeaturePropertyAge,
			FeatureHasGarage, FeatureLogSqft,
		}},
	}
}
