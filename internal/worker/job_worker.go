package worker

import (
	"context"
	"errors"
	"fmt"

	"orcamento/internal/amqp"
	"orcamento/internal/core"
	"orcamento/internal/log"
	"orcamento/internal/services"
)

// Jobs is the part of the report service the worker runs.
type Jobs interface {
	Refresh(ctx context.Context) core.Result[int]
	ExportCSV(ctx context.Context, sel core.Selector) (core.Result[string], error)
	ExportXLSX(ctx context.Context, sel core.Selector) (core.Result[string], error)
	ExportSheets(ctx context.Context, sel core.Selector) (core.Result[string], error)
}

// JobWorker executes cache refresh and export jobs taken from the queue.
type JobWorker struct {
	jobs    Jobs
	minYear int
	maxYear int
	logger  *log.Logger
}

func NewJobWorker(jobs Jobs, minYear, maxYear int, logger *log.Logger) *JobWorker {
	return &JobWorker{
		jobs:    jobs,
		minYear: minYear,
		maxYear: maxYear,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Handle dispatches an envelope to the matching job. Errors that a retry
// cannot fix wrap amqp.ErrPermanent so the message is dropped.
func (w *JobWorker) Handle(ctx context.Context, env *amqp.Envelope) error {
	switch env.Type {
	case amqp.TypeCacheRefresh:
		msg, err := env.CacheRefresh()
		if err != nil {
			return fmt.Errorf("%w: decode cache refresh: %w", amqp.ErrPermanent, err)
		}
		return w.HandleCacheRefresh(ctx, env.ID, msg)
	case amqp.TypeExportRequest:
		msg, err := env.ExportRequest()
		if err != nil {
			return fmt.Errorf("%w: decode export request: %w", amqp.ErrPermanent, err)
		}
		return w.HandleExportRequest(ctx, env.ID, msg)
	default:
		return fmt.Errorf("%w: %w %q", amqp.ErrPermanent, amqp.ErrUnknownMessage, env.Type)
	}
}

// HandleCacheRefresh refetches the full extract. A source error is
// returned so the message is requeued.
func (w *JobWorker) HandleCacheRefresh(ctx context.Context, jobID string, msg amqp.CacheRefreshMessage) error {
	w.logger.InfoContext(ctx, "Processing cache refresh", log.FieldJobID, jobID, "reason", msg.Reason)

	res := w.jobs.Refresh(ctx)
	if res.Kind == core.ResultSourceError {
		return fmt.Errorf("refresh cache: %w", res.Err)
	}

	w.logger.InfoContext(ctx, "Cache refresh completed",
		log.FieldJobID, jobID,
		log.FieldResultKind, res.Kind.String(),
		log.FieldRecords, res.Value)
	return nil
}

// HandleExportRequest exports the comparative report of the message's
// selector to the requested target.
func (w *JobWorker) HandleExportRequest(ctx context.Context, jobID string, msg amqp.ExportRequestMessage) error {
	sel := core.NewSelector(msg.Selector.FiscalYear, msg.Selector.Month, msg.Selector.Unit)
	if err := sel.Validate(w.minYear, w.maxYear); err != nil {
		return fmt.Errorf("%w: %w", amqp.ErrPermanent, err)
	}

	w.logger.InfoContext(ctx, "Processing export request",
		log.FieldJobID, jobID,
		log.FieldFiscalYear, sel.FiscalYear,
		log.FieldMonth, sel.Month,
		log.FieldUnit, sel.UnitKey(),
		"target", msg.Target)

	var (
		res core.Result[string]
		err error
	)
	switch msg.Target {
	case services.TargetCSV:
		res, err = w.jobs.ExportCSV(ctx, sel)
	case services.TargetXLSX:
		res, err = w.jobs.ExportXLSX(ctx, sel)
	case services.TargetSheets:
		res, err = w.jobs.ExportSheets(ctx, sel)
	default:
		return fmt.Errorf("%w: %w %q", amqp.ErrPermanent, services.ErrUnknownTarget, msg.Target)
	}

	if errors.Is(err, services.ErrNoSheets) {
		return fmt.Errorf("%w: %w", amqp.ErrPermanent, err)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", msg.Target, err)
	}
	if res.Kind == core.ResultSourceError {
		return fmt.Errorf("export %s: %w", msg.Target, res.Err)
	}

	w.logger.InfoContext(ctx, "Export completed",
		log.FieldJobID, jobID,
		log.FieldResultKind, res.Kind.String(),
		"target", msg.Target,
		"location", res.Value)
	return nil
}
