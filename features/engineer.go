package features

import (
	"math"

	"github.com/YuminosukeSato/tieravm/config"
	"github.com/YuminosukeSato/tieravm/dataset"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"github.com/YuminosukeSato/tieravm/pkg/log"
)

// Engineered is the filtered table with derived columns and tier labels.
type Engineered struct {
	Table       *dataset.Table
	PriceColumn string
	Tiers       []string // tier name per row
	Dropped     int      // rows removed by the price floor
}

// Engineer filters rows below the price floor, adds the derived features
// whose source columns exist and labels every row with its price tier.
//
// A missing price column is fatal. The input table is not modified.
func Engineer(raw *dataset.Table, cfg *config.Config) (*Engineered, error) {
	logger := log.GetLoggerWithName("features").With(log.OperationKey, "engineer")

	priceCol := cfg.PriceColumn()
	prices, ok := raw.Column(priceCol)
	if !ok {
		return nil, errors.NewMissingColumnError(priceCol, config.FeaturePrice)
	}

	// NaNは比較が常にfalseなので下限フィルタで落ちる
	tbl, _ := raw.Filter(func(i int) bool { return prices[i] >= cfg.MinPrice })
	dropped := raw.NumRows() - tbl.NumRows()
	logger.Info("Price floor applied",
		log.SamplesKey, tbl.NumRows(),
		"dropped", dropped,
		"min_price", cfg.MinPrice,
	)

	col := func(canonical string) ([]float64, bool) {
		return tbl.Column(cfg.Column(canonical))
	}
	derive := func(canonical string, values []float64) error {
		return tbl.SetColumn(cfg.Column(canonical), values)
	}
	n := tbl.NumRows()

	living, hasLiving := col(config.FeatureLivingSqft)
	bedrooms, hasBedrooms := col(config.FeatureBedrooms)
	lot, hasLot := col(config.FeatureLotSqft)
	yearBuilt, hasYear := col(config.FeatureYearBuilt)
	garage, hasGarage := col(config.FeatureGarageSpaces)

	var derived []string
	if hasLiving && hasBedrooms {
		if err := derive(config.FeatureSqftPerBedroom, mapRows(n, func(i int) float64 {
			return SqftPerBedroom(living[i], bedrooms[i])
		})); err != nil {
			return nil, err
		}
		derived = append(derived, config.FeatureSqftPerBedroom)
	}
	if hasLot && hasLiving {
		if err := derive(config.FeatureLotToLivingRatio, mapRows(n, func(i int) float64 {
			return LotToLivingRatio(lot[i], living[i])
		})); err != nil {
			return nil, err
		}
		derived = append(derived, config.FeatureLotToLivingRatio)
	}
	if hasYear {
		if err := derive(config.FeaturePropertyAge, mapRows(n, func(i int) float64 {
			return PropertyAge(cfg.ReferenceYear, yearBuilt[i])
		})); err != nil {
			return nil, err
		}
		derived = append(derived, config.FeaturePropertyAge)
	}
	if hasGarage {
		if err := derive(config.FeatureHasGarage, mapRows(n, func(i int) float64 {
			return HasGarage(garage[i])
		})); err != nil {
			return nil, err
		}
		derived = append(derived, config.FeatureHasGarage)
	}
	if hasLiving {
		if err := derive(config.FeatureLogSqft, mapRows(n, func(i int) float64 {
			return LogSqft(living[i])
		})); err != nil {
			return nil, err
		}
		derived = append(derived, config.FeatureLogSqft)
	}

	kept, _ := tbl.Column(priceCol)
	tiers := make([]string, n)
	for i, p := range kept {
		tiers[i] = cfg.Tiers.Lookup(p)
	}

	logger.Info("Features engineered", "derived", derived)

	return &Engineered{
		Table:       tbl,
		PriceColumn: priceCol,
		Tiers:       tiers,
		Dropped:     dropped,
	}, nil
}

// RowsByTier groups row indices by tier name, keeping row order.
func (e *Engineered) RowsByTier() map[string][]int {
	out := make(map[string][]int)
	for i, t := range e.Tiers {
		out[t] = append(out[t], i)
	}
	return out
}

// SqftPerBedroom is living area / (bedrooms + 1).
func SqftPerBedroom(living, bedrooms float64) float64 {
	return living / (bedrooms + 1)
}

// LotToLivingRatio is lot size / (living area + 1).
func LotToLivingRatio(lot, living float64) float64 {
	return lot / (living + 1)
}

// PropertyAge is referenceYear - yearBuilt.
func PropertyAge(referenceYear int, yearBuilt float64) float64 {
	return float64(referenceYear) - yearBuilt
}

// HasGarage is 1 when there is at least one garage space. Missing counts
// as no garage.
func HasGarage(spaces float64) float64 {
	if spaces > 0 {
		return 1
	}
	return 0
}

// LogSqft is log(1 + living area).
func LogSqft(living float64) float64 {
	return math.Log1p(living)
}

func mapRows(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}
