package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/veridoc/veridoc/app"
	"github.com/veridoc/veridoc/models"
	"github.com/veridoc/veridoc/utils"
)

// SubmitAnalysisRequest represents a request to analyze a document
type SubmitAnalysisRequest struct {
	DocumentText string `json:"document_text" validate:"required,min=1"`
}

// SubmitAnalysisResponse acknowledges an accepted analysis job
type SubmitAnalysisResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobResponse represents a job in API responses
type JobResponse struct {
	ID           string                     `json:"id"`
	Status       string                     `json:"status"`
	Result       *models.AnalysisResult     `json:"result,omitempty"`
	Error        string                     `json:"error,omitempty"`
	SecurityScan *models.SecurityScanResult `json:"security_scan,omitempty"`
	CreatedAt    string                     `json:"created_at"`
	UpdatedAt    string                     `json:"updated_at"`
}

// SubmitAnalysisHandler handles POST /api/v1/analysis
func SubmitAnalysisHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitAnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			fields := map[string]interface{}{}
			for k, v := range utils.GetValidationFields(err) {
				fields[k] = v
			}
			_ = utils.WriteBadRequest(w, "Validation failed", fields)
			return
		}

		job, err := deps.Analysis.Submit(r.Context(), req.DocumentText)
		if err != nil {
			deps.Logger.Error("job submission failed", zap.Error(err))
			_ = utils.WriteDomainError(w, err)
			return
		}

		_ = utils.WriteAccepted(w, SubmitAnalysisResponse{
			JobID:  job.ID,
			Status: "queued",
		})
	}
}

// GetAnalysisHandler handles GET /api/v1/analysis/{id}
func GetAnalysisHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := deps.Analysis.Get(r.Context(), id)
		if err != nil {
			_ = utils.WriteDomainError(w, err)
			return
		}

		_ = utils.WriteJSON(w, http.StatusOK, jobResponse(job))
	}
}

func jobResponse(job *models.Job) JobResponse {
	return JobResponse{
		ID:           job.ID,
		Status:       string(job.Status),
		Result:       job.Result,
		Error:        job.Error,
		SecurityScan: job.SecurityScan,
		CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
