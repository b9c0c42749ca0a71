// Package app wires the application together. Dependencies is the central
// dependency-injection point consumed by the route setup.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/veridoc/veridoc/config"
	"github.com/veridoc/veridoc/identity"
	"github.com/veridoc/veridoc/middleware"
	"github.com/veridoc/veridoc/observability"
	"github.com/veridoc/veridoc/services/analysis"
	"github.com/veridoc/veridoc/services/classifier"
	"github.com/veridoc/veridoc/services/dispatch"
	"github.com/veridoc/veridoc/services/firewall"
	"github.com/veridoc/veridoc/store"
	"github.com/veridoc/veridoc/store/memory"
	"github.com/veridoc/veridoc/tenancy"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics observability.Metrics

	Store    *store.Scoped
	Analysis *analysis.Service

	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies. The
// store backend defaults to the in-process implementation; a hosted document
// store plugs in behind store.Backend at deployment time.
func NewDependencies(cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewProm(cfg.Observability.MetricsNamespace)
	} else {
		deps.Metrics = observability.Noop{}
	}

	metrics := deps.Metrics
	deps.Store = store.New(memory.New(), logger,
		store.WithBreachHook(func(tenant tenancy.Tenant, path string) {
			metrics.IncSecurityBreaches()
		}))

	patterns, err := firewall.LoadPatterns(cfg.Firewall.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load firewall patterns: %w", err)
	}

	var semantic firewall.Classifier
	if cfg.Classifier.APIKey != "" {
		semantic = classifier.NewClient(classifier.Config{
			BaseURL:    cfg.Classifier.BaseURL,
			APIKey:     cfg.Classifier.APIKey,
			Model:      cfg.Classifier.Model,
			Timeout:    cfg.Classifier.Timeout,
			MaxRetries: cfg.Classifier.MaxRetries,
		}, logger)
	} else {
		logger.Warn("no classifier API key configured, semantic scanning disabled")
	}
	fw := firewall.New(patterns, semantic, logger)

	queue := dispatch.NewClient(dispatch.Config{
		QueueURL:       cfg.Dispatch.QueueURL,
		WorkerURL:      cfg.Dispatch.WorkerURL,
		ServiceAccount: cfg.Dispatch.ServiceAccount,
		Timeout:        cfg.Dispatch.Timeout,
	}, logger)

	deps.Analysis = analysis.NewService(deps.Store, queue, fw,
		analysis.StaticAnalyzer{}, deps.Metrics, logger)

	users := identity.NewVerifier(identity.Config{
		Issuer:   cfg.Identity.Issuer,
		JWKSURL:  cfg.Identity.JWKSURL,
		Audience: cfg.Identity.Audience,
		CacheTTL: cfg.Identity.CacheTTL,
	})
	workers := identity.NewServiceVerifier(identity.Config{
		Issuer:   cfg.Dispatch.WorkerIssuer,
		JWKSURL:  cfg.Dispatch.WorkerJWKSURL,
		Audience: cfg.Dispatch.WorkerAudience,
	}, cfg.Dispatch.ServiceAccount)

	// The skip-verify escape hatch never survives into production; Validate
	// rejects the combination before we get here.
	deps.AuthMiddleware = middleware.NewAuthMiddleware(users, workers,
		cfg.Dispatch.SkipVerify && !cfg.IsProduction(), logger)

	logger.Info("all dependencies initialized")
	return deps, nil
}
