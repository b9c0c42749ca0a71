// Package analysis orchestrates the job lifecycle: submission creates a
// queued ledger entry and dispatches a worker task; the worker path scans the
// payload through the content firewall and runs the analyzer, recording every
// outcome back onto the job.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridoc/veridoc/models"
	"github.com/veridoc/veridoc/observability"
	"github.com/veridoc/veridoc/services"
	"github.com/veridoc/veridoc/services/dispatch"
	"github.com/veridoc/veridoc/services/firewall"
	"github.com/veridoc/veridoc/store"
	"github.com/veridoc/veridoc/tenancy"
)

// Service coordinates the analysis pipeline over the tenant-scoped store.
type Service struct {
	store    *store.Scoped
	queue    dispatch.Queue
	firewall *firewall.Service
	analyzer Analyzer
	metrics  observability.Metrics
	logger   *zap.Logger
}

// NewService creates the analysis service.
func NewService(scoped *store.Scoped, queue dispatch.Queue, fw *firewall.Service,
	analyzer Analyzer, metrics observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:    scoped,
		queue:    queue,
		firewall: fw,
		analyzer: analyzer,
		metrics:  metrics,
		logger:   logger,
	}
}

func jobPath(tenant tenancy.Tenant, id string) string {
	return fmt.Sprintf("tenants/%s/jobs/%s", tenant, id)
}

// Submit creates a QUEUED job for the tenant bound to ctx and enqueues a
// processing task. If the enqueue fails the job is marked FAILED_QUEUE and a
// dispatch error is returned; the ledger entry survives for inspection.
func (s *Service) Submit(ctx context.Context, documentText string) (*models.Job, error) {
	if strings.TrimSpace(documentText) == "" {
		return nil, services.ErrEmptyDocument
	}

	tenant, _ := tenancy.FromContext(ctx)
	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.NewString(),
		Tenant:      tenant,
		Status:      models.JobStatusQueued,
		PayloadText: documentText,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	doc, err := s.store.Doc(ctx, jobPath(tenant, job.ID))
	if err != nil {
		return nil, err
	}
	if err := doc.Set(ctx, job.ToDoc(), false); err != nil {
		return nil, services.WrapInternal("failed to create job", err)
	}
	s.metrics.IncJobsSubmitted()
	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("tenant", string(tenant)))

	task := dispatch.Task{
		JobID:   job.ID,
		Tenant:  string(tenant),
		Payload: documentText,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.metrics.IncDispatchFailures()
		s.logger.Error("enqueue failed, marking job FAILED_QUEUE",
			zap.String("job_id", job.ID),
			zap.Error(err))
		if uerr := s.finishJob(ctx, doc, models.JobStatusFailedQueue,
			map[string]any{"error": "failed to enqueue processing task"}); uerr != nil {
			s.logger.Error("failed to record FAILED_QUEUE status",
				zap.String("job_id", job.ID),
				zap.Error(uerr))
		}
		return nil, err
	}

	return job, nil
}

// Get returns the job with the given id from the calling tenant's subtree.
func (s *Service) Get(ctx context.Context, id string) (*models.Job, error) {
	tenant, _ := tenancy.FromContext(ctx)
	doc, err := s.store.Doc(ctx, jobPath(tenant, id))
	if err != nil {
		return nil, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, services.ErrJobNotFound
		}
		return nil, services.WrapInternal("failed to read job", err)
	}
	if !snap.Exists {
		return nil, services.ErrJobNotFound
	}
	return models.JobFromDoc(snap.Data), nil
}

// Process handles one delivered worker task. The job's tenant is installed
// from the task payload before any store access.
//
// The queue may deliver a task more than once, and may deliver tasks whose
// job has since disappeared. Both are acked without effect: an unknown job id
// returns nil, and a job already in a terminal state is never regressed.
func (s *Service) Process(ctx context.Context, task dispatch.Task) error {
	ctx = tenancy.WithTenant(ctx, tenancy.Tenant(task.Tenant))

	doc, err := s.store.Doc(ctx, jobPath(tenancy.Tenant(task.Tenant), task.JobID))
	if err != nil {
		return err
	}
	snap, err := doc.Get(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return services.WrapInternal("failed to read job", err)
	}
	if err != nil || !snap.Exists {
		s.logger.Warn("task references unknown job, acking",
			zap.String("job_id", task.JobID),
			zap.String("tenant", task.Tenant))
		return nil
	}
	job := models.JobFromDoc(snap.Data)
	if job.Status.Terminal() {
		s.logger.Info("redelivered task for terminal job, acking",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)))
		return nil
	}

	scan := s.firewall.Scan(ctx, job.PayloadText)
	s.metrics.IncScanVerdicts(string(scan.ThreatType))
	if !scan.IsSafe {
		s.logger.Warn("payload rejected by content firewall",
			zap.String("job_id", job.ID),
			zap.String("threat_type", string(scan.ThreatType)),
			zap.Float64("risk_score", scan.RiskScore))
		return s.finishJob(ctx, doc, models.JobStatusFailed, map[string]any{
			"error":         "document rejected by security scan",
			"security_scan": scan.ToDoc(),
		})
	}

	if err := s.setStatus(ctx, doc, models.JobStatusProcessing,
		map[string]any{"security_scan": scan.ToDoc()}); err != nil {
		return err
	}

	result, err := s.analyzer.Analyze(ctx, job.PayloadText)
	if err != nil {
		s.logger.Error("analysis failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return s.finishJob(ctx, doc, models.JobStatusFailed, map[string]any{
			"error": fmt.Sprintf("analysis failed: %v", err),
		})
	}

	s.logger.Info("job completed", zap.String("job_id", job.ID))
	return s.finishJob(ctx, doc, models.JobStatusCompleted, map[string]any{
		"result": map[string]any{
			"summary":    result.Summary,
			"risk_score": result.RiskScore,
		},
	})
}

func (s *Service) setStatus(ctx context.Context, doc *store.Document,
	status models.JobStatus, extra map[string]any) error {
	updates := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := doc.Update(ctx, updates); err != nil {
		return services.WrapInternal("failed to update job status", err)
	}
	return nil
}

func (s *Service) finishJob(ctx context.Context, doc *store.Document,
	status models.JobStatus, extra map[string]any) error {
	if err := s.setStatus(ctx, doc, status, extra); err != nil {
		return err
	}
	s.metrics.IncJobsCompleted(string(status))
	return nil
}
