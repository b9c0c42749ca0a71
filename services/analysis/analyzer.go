package analysis

import (
	"context"

	"github.com/veridoc/veridoc/models"
)

// Analyzer produces the analysis verdict for a document that passed the
// content firewall.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*models.AnalysisResult, error)
}

// StaticAnalyzer returns a fixed verdict. It stands in for the real analysis
// engine, which is a deployment concern behind the Analyzer seam.
type StaticAnalyzer struct{}

func (StaticAnalyzer) Analyze(ctx context.Context, text string) (*models.AnalysisResult, error) {
	return &models.AnalysisResult{
		Summary:   "Contract analysis complete.",
		RiskScore: 0.5,
	}, nil
}
