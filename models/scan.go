package models

// ThreatType categorizes what the content firewall found.
type ThreatType string

const (
	ThreatNone       ThreatType = "NONE"
	ThreatInjection  ThreatType = "INJECTION"
	ThreatHiddenText ThreatType = "HIDDEN_TEXT"
	ThreatJailbreak  ThreatType = "JAILBREAK"
	ThreatAnomaly    ThreatType = "ANOMALY"
)

// SecurityScanResult is the outcome of a content firewall scan. It is
// immutable once produced and attached to exactly one job.
type SecurityScanResult struct {
	IsSafe          bool       `json:"is_safe"`
	RiskScore       float64    `json:"risk_score"`
	FlaggedSegments []string   `json:"flagged_segments"`
	ThreatType      ThreatType `json:"threat_type"`
	Reasoning       string     `json:"reasoning,omitempty"`
}

// ToDoc flattens the scan result into a document for the hierarchical store.
func (r *SecurityScanResult) ToDoc() map[string]any {
	segments := make([]any, len(r.FlaggedSegments))
	for i, s := range r.FlaggedSegments {
		segments[i] = s
	}
	return map[string]any{
		"is_safe":          r.IsSafe,
		"risk_score":       r.RiskScore,
		"flagged_segments": segments,
		"threat_type":      string(r.ThreatType),
		"reasoning":        r.Reasoning,
	}
}

// ScanResultFromDoc rebuilds a scan result from its stored document form.
func ScanResultFromDoc(doc map[string]any) *SecurityScanResult {
	r := &SecurityScanResult{
		RiskScore:  docFloat(doc, "risk_score"),
		ThreatType: ThreatType(docString(doc, "threat_type")),
		Reasoning:  docString(doc, "reasoning"),
	}
	if b, ok := doc["is_safe"].(bool); ok {
		r.IsSafe = b
	}
	if raw, ok := doc["flagged_segments"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				r.FlaggedSegments = append(r.FlaggedSegments, s)
			}
		}
	}
	return r
}
