// Package features resolves the declared feature taxonomy against a table and
// derives the engineered columns and price tiers.
package features

import (
	"fmt"
	"strings"

	"github.com/YuminosukeSato/tieravm/config"
	"github.com/YuminosukeSato/tieravm/pkg/log"
)

// ColumnSet is anything that can answer whether a column exists.
type ColumnSet interface {
	Has(name string) bool
}

// ResolvedFeature pairs a canonical feature name with its actual column.
type ResolvedFeature struct {
	Canonical string
	Column    string
}

// GroupReport is the availability of one feature group.
type GroupReport struct {
	Group     string
	Available []ResolvedFeature
	Missing   []string // canonical names
}

// Total returns the number of declared features of the group.
func (g GroupReport) Total() int {
	return len(g.Available) + len(g.Missing)
}

// MissingPreview lists the missing names when there are at most limit of
// them, otherwise only their count.
func (g GroupReport) MissingPreview(limit int) string {
	if len(g.Missing) == 0 {
		return ""
	}
	if len(g.Missing) <= limit {
		return strings.Join(g.Missing, ", ")
	}
	return fmt.Sprintf("%d features", len(g.Missing))
}

// Report is the result of resolving the taxonomy.
type Report struct {
	Groups []GroupReport
	// Features are the actual column names to train on, in group order then
	// declaration order, without duplicates.
	Features []string
}

// Group returns the report of the named group.
func (r *Report) Group(name string) (GroupReport, bool) {
	for _, g := range r.Groups {
		if g.Group == name {
			return g, true
		}
	}
	return GroupReport{}, false
}

// Resolve determines which declared features exist in cols after name
// mapping. Absent features are reported as missing and never cause an error.
// The price column is never returned as a feature.
func Resolve(cols ColumnSet, cfg *config.Config) *Report {
	logger := log.GetLoggerWithName("features").With(log.OperationKey, "resolve")

	price := cfg.PriceColumn()
	report := &Report{Groups: make([]GroupReport, 0, len(cfg.FeatureGroups))}
	seen := make(map[string]bool)

	for _, group := range cfg.FeatureGroups {
		gr := GroupReport{Group: group.Name}
		for _, canonical := range group.Features {
			column := cfg.Column(canonical)
			if column == price || !cols.Has(column) {
				gr.Missing = append(gr.Missing, canonical)
				continue
			}
			gr.Available = append(gr.Available, ResolvedFeature{Canonical: canonical, Column: column})
			if !seen[column] {
				seen[column] = true
				report.Features = append(report.Features, column)
			}
		}
		report.Groups = append(report.Groups, gr)

		logger.Info("Feature group resolved",
			log.FeatureGroupKey, gr.Group,
			"available", len(gr.Available),
			"total", gr.Total(),
			"missing", gr.MissingPreview(10),
		)
	}

	logger.Info("Features resolved", log.FeaturesKey, len(report.Features))
	return report
}
