package export

import (
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/YuminosukeSato/tieravm/aggregate"
	"github.com/YuminosukeSato/tieravm/features"
)

// missingPreviewLimit is how many missing feature names are listed per group.
const missingPreviewLimit = 10

// SummaryInput is everything the console summary reports.
type SummaryInput struct {
	Run    RunInfo
	Result *aggregate.Result
	Report *features.Report
	TopN   int
	Files  []string
}

// WriteSummary prints the run summary to w with grouped thousands.
func WriteSummary(w io.Writer, in SummaryInput) error {
	p := message.NewPrinter(language.English)
	sw := &summaryWriter{w: w, p: p}
	rule := strings.Repeat("=", 60)

	sw.printf("%s\n", rule)
	sw.printf("Depth-tuned stratified AVM  run %s\n", in.Run.RunID)
	sw.printf("%s\n", rule)
	sw.printf("Input:            %s\n", in.Run.InputPath)
	sw.printf("Records:          %d\n", in.Run.NumRecords)

	if in.Report != nil {
		sw.printf("\nFeature availability\n")
		for _, g := range in.Report.Groups {
			sw.printf("  %-14s %d/%d", g.Group, len(g.Available), g.Total())
			if miss := g.MissingPreview(missingPreviewLimit); miss != "" {
				sw.printf("  missing: %s", miss)
			}
			sw.printf("\n")
		}
	}
	sw.printf("Features used:    %d\n", in.Run.NumFeatures)

	res := in.Result
	if res == nil {
		return sw.err
	}

	sw.printf("\nOverall (pooled held-out)\n")
	sw.printf("  MAE:   $%.0f\n", res.Overall.MAE)
	sw.printf("  MAPE:  %.2f%%\n", res.Overall.MAPE)
	sw.printf("  R2:    %.4f\n", res.Overall.R2)
	sw.printf("  Predictions: %d\n", len(res.Predictions))

	sw.printf("\nOptimal depth by tier\n")
	for _, tm := range res.TierMetrics {
		sw.printf("  %-12s depth %2d  n_train %d  n_test %d  MAPE %.2f%%\n",
			tm.Tier, tm.BestDepth, tm.NTrain, tm.NTest, tm.MAPE)
	}
	sw.printf("Depths tested:    %v\n", res.DepthsTested)

	top := res.TopFeatures(in.TopN)
	if len(top) > 0 {
		sw.printf("\nTop %d features\n", len(top))
		for i, fi := range top {
			sw.printf("  %2d. %-32s %.4f\n", i+1, fi.Feature, fi.Importance)
		}
	}

	sw.printf("\nElapsed:          %.1fs\n", in.Run.Elapsed.Seconds())
	if len(in.Files) > 0 {
		sw.printf("Files written:\n")
		for _, f := range in.Files {
			sw.printf("  %s\n", f)
		}
	}
	return sw.err
}

// summaryWriter keeps the first write error.
type summaryWriter struct {
	w   io.Writer
	p   *message.Printer
	err error
}

func (s *summaryWriter) printf(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, s.err = s.p.Fprintf(s.w, format, args...)
}
