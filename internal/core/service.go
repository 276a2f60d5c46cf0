package core

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Dazzlm/excel-generation/internal/excel"
	"github.com/Dazzlm/excel-generation/internal/schema"
)

// Service runs the upload and export pipelines against a Store. One Service
// is shared by all requests; per-job state lives in the job itself.
type Service struct {
	store     Store
	templates *excel.TemplateStore
	limiter   *JobLimiter
	logger    *slog.Logger
}

// NewService wires a Service. A nil limiter disables concurrency control,
// which tests use; a nil logger falls back to slog's default.
func NewService(store Store, templates *excel.TemplateStore, limiter *JobLimiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if templates == nil {
		templates = excel.NewTemplateStore("")
	}
	return &Service{
		store:     store,
		templates: templates,
		limiter:   limiter,
		logger:    logger,
	}
}

// Limiter exposes the job limiter for shutdown draining and health reporting.
func (s *Service) Limiter() *JobLimiter {
	return s.limiter
}

// DescribeTable returns the column catalog for table.
func (s *Service) DescribeTable(ctx context.Context, table string) (*schema.Table, error) {
	return s.store.Describe(ctx, table)
}

// ListTables returns all table names visible to the service.
func (s *Service) ListTables(ctx context.Context) ([]string, error) {
	return s.store.ListTables(ctx)
}

// acquireSlot takes a limiter slot when a limiter is configured. The returned
// release func is always safe to defer.
func (s *Service) acquireSlot(ctx context.Context) (func(), error) {
	if s.limiter == nil {
		return func() {}, nil
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return s.limiter.Release, nil
}

// jobLogger returns a logger carrying a fresh correlation id for one job.
func (s *Service) jobLogger(kind, table string) *slog.Logger {
	return s.logger.With(
		"job_id", uuid.New().String(),
		"job", kind,
		"table", table,
	)
}
