package models

import (
	"time"

	"github.com/veridoc/veridoc/tenancy"
)

// JobStatus is the lifecycle state of an analysis job.
//
// The externally visible lifecycle is monotonic:
//
//	QUEUED -> PROCESSING -> COMPLETED
//	QUEUED -> PROCESSING -> FAILED
//	QUEUED -> FAILED_QUEUE
type JobStatus string

const (
	JobStatusQueued      JobStatus = "QUEUED"
	JobStatusProcessing  JobStatus = "PROCESSING"
	JobStatusCompleted   JobStatus = "COMPLETED"
	JobStatusFailed      JobStatus = "FAILED"
	JobStatusFailedQueue JobStatus = "FAILED_QUEUE"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusFailedQueue:
		return true
	}
	return false
}

// Job is one submitted analysis request and its lifecycle state. Jobs are
// created by the submission handler and mutated only by the dispatch
// pipeline; they live at tenants/{tenant}/jobs/{id} and are never deleted by
// this service.
type Job struct {
	ID           string              `json:"id"`
	Tenant       tenancy.Tenant      `json:"tenant"`
	Status       JobStatus           `json:"status"`
	PayloadText  string              `json:"payload_text"`
	Result       *AnalysisResult     `json:"result,omitempty"`
	Error        string              `json:"error,omitempty"`
	SecurityScan *SecurityScanResult `json:"security_scan,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// AnalysisResult is the structured verdict produced by the analysis step.
type AnalysisResult struct {
	Summary   string  `json:"summary"`
	RiskScore float64 `json:"risk_score"`
}

// ToDoc flattens the job into a document for the hierarchical store.
func (j *Job) ToDoc() map[string]any {
	doc := map[string]any{
		"id":           j.ID,
		"tenant":       string(j.Tenant),
		"status":       string(j.Status),
		"payload_text": j.PayloadText,
		"created_at":   j.CreatedAt,
		"updated_at":   j.UpdatedAt,
	}
	if j.Error != "" {
		doc["error"] = j.Error
	}
	if j.Result != nil {
		doc["result"] = map[string]any{
			"summary":    j.Result.Summary,
			"risk_score": j.Result.RiskScore,
		}
	}
	if j.SecurityScan != nil {
		doc["security_scan"] = j.SecurityScan.ToDoc()
	}
	return doc
}

// JobFromDoc rebuilds a job from its stored document form.
func JobFromDoc(doc map[string]any) *Job {
	j := &Job{
		ID:          docString(doc, "id"),
		Tenant:      tenancy.Tenant(docString(doc, "tenant")),
		Status:      JobStatus(docString(doc, "status")),
		PayloadText: docString(doc, "payload_text"),
		Error:       docString(doc, "error"),
	}
	if t, ok := doc["created_at"].(time.Time); ok {
		j.CreatedAt = t
	}
	if t, ok := doc["updated_at"].(time.Time); ok {
		j.UpdatedAt = t
	}
	if m, ok := doc["result"].(map[string]any); ok {
		j.Result = &AnalysisResult{
			Summary:   docString(m, "summary"),
			RiskScore: docFloat(m, "risk_score"),
		}
	}
	if m, ok := doc["security_scan"].(map[string]any); ok {
		j.SecurityScan = ScanResultFromDoc(m)
	}
	return j
}

func docString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docFloat(doc map[string]any, key string) float64 {
	switch v := doc[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
