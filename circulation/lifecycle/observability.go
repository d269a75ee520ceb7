package lifecycle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

const (
	// OperationDurationMetric tracks controller operation duration.
	OperationDurationMetric = "circulation_operation_duration_seconds"

	// OperationCallsMetric counts controller operation calls by outcome.
	OperationCallsMetric = "circulation_operation_calls_total"

	// RejectionsMetric counts business rule rejections by reason.
	RejectionsMetric = "circulation_rejections_total"

	// InvariantViolationsMetric counts detected counter inconsistencies. Any increase is a bug.
	InvariantViolationsMetric = "circulation_invariant_violations_total"

	// SweepTransitionsMetric is the number of loans the last sweep moved to OVERDUE.
	SweepTransitionsMetric = "circulation_sweep_transitions"

	OperationCreateLoan     = "create_loan"
	OperationReturnLoan     = "return_loan"
	OperationCancelLoan     = "cancel_loan"
	OperationSweepOverdue   = "sweep_overdue"
	OperationRegisterItem   = "register_item"
	OperationReviseCapacity = "revise_capacity"
	OperationAuditItem      = "audit_item"

	StatusSuccess            = "success"
	StatusRejected           = "rejected"
	StatusNotFound           = "not_found"
	StatusInvariantViolation = "invariant_violation"
	StatusCanceled           = "canceled"
	StatusTimeout            = "timeout"
	StatusError              = "error"

	LogMsgOperationStarted   = "circulation operation started"
	LogMsgOperationCompleted = "circulation operation completed"
	LogMsgOperationRejected  = "circulation operation rejected"
	LogMsgOperationFailed    = "circulation operation failed"
	LogMsgSweepInterrupted   = "overdue sweep interrupted"
	LogMsgSweepSkippedLoan   = "overdue sweep skipped vanished loan"

	LogAttrOperation  = "operation"
	LogAttrStatus     = "status"
	LogAttrReason     = "reason"
	LogAttrDurationMS = "duration_ms"
	LogAttrError      = "error"
	LogAttrLoanID     = "loan_id"
	LogAttrItemID     = "item_id"
	LogAttrBorrowerID = "borrower_id"
	LogAttrCount      = "count"
	LogAttrDaysLate   = "days_late"

	SpanNameOperation = "circulation.operation"
)

// observation carries the instrumentation of one running operation.
type observation struct {
	c         *Controller
	ctx       context.Context
	operation string
	start     time.Time
	span      circulation.SpanContext
	attrs     []any
}

func (c *Controller) observe(ctx context.Context, operation string, attrs ...any) (context.Context, *observation) {
	o := &observation{c: c, operation: operation, start: time.Now(), attrs: attrs}

	if c.tracingCollector != nil {
		ctx, o.span = c.tracingCollector.StartSpan(ctx, SpanNameOperation, spanAttrs(operation, attrs))
	}

	o.ctx = ctx
	o.log(levelInfo, LogMsgOperationStarted)

	return ctx, o
}

// annotate adds attributes known only after the operation started, e.g. the item of a looked-up loan.
func (o *observation) annotate(attrs ...any) {
	o.attrs = append(o.attrs, attrs...)

	if o.span != nil {
		for key, value := range spanAttrs("", attrs) {
			if key != LogAttrOperation {
				o.span.AddAttribute(key, value)
			}
		}
	}
}

func (o *observation) finish(err error) {
	duration := time.Since(o.start)
	status := StatusOf(err)

	o.recordMetrics(status, err, duration)
	o.finishSpan(status, err, duration)

	args := []any{LogAttrStatus, status, LogAttrDurationMS, toMilliseconds(duration)}

	switch status {
	case StatusSuccess:
		o.log(levelInfo, LogMsgOperationCompleted, args...)
	case StatusRejected, StatusNotFound:
		args = append(args, LogAttrReason, rejectionLabel(err, status), LogAttrError, err.Error())
		o.log(levelInfo, LogMsgOperationRejected, args...)
	default:
		args = append(args, LogAttrError, err.Error())
		o.log(levelError, LogMsgOperationFailed, args...)
	}
}

func (o *observation) recordMetrics(status string, err error, duration time.Duration) {
	collector := o.c.metricsCollector
	if collector == nil {
		return
	}

	labels := map[string]string{LogAttrOperation: o.operation, LogAttrStatus: status}
	recordDuration(o.ctx, collector, OperationDurationMetric, duration, labels)
	incrementCounter(o.ctx, collector, OperationCallsMetric, labels)

	switch status {
	case StatusRejected, StatusNotFound:
		incrementCounter(o.ctx, collector, RejectionsMetric, map[string]string{
			LogAttrOperation: o.operation,
			LogAttrReason:    rejectionLabel(err, status),
		})
	case StatusInvariantViolation:
		incrementCounter(o.ctx, collector, InvariantViolationsMetric, map[string]string{LogAttrOperation: o.operation})
	}
}

func (o *observation) finishSpan(status string, err error, duration time.Duration) {
	if o.c.tracingCollector == nil || o.span == nil {
		return
	}

	attrs := map[string]string{
		LogAttrStatus:     status,
		LogAttrDurationMS: strconv.FormatFloat(toMilliseconds(duration), 'f', 3, 64),
	}

	if err != nil {
		attrs[LogAttrError] = err.Error()
	}

	if reason := circulation.ReasonOf(err); reason != "" {
		attrs[LogAttrReason] = reason.String()
	}

	o.c.tracingCollector.FinishSpan(o.span, status, attrs)
}

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func (o *observation) log(level logLevel, msg string, extra ...any) {
	args := make([]any, 0, 2+len(o.attrs)+len(extra))
	args = append(args, LogAttrOperation, o.operation)
	args = append(args, o.attrs...)
	args = append(args, extra...)

	o.c.log(o.ctx, level, msg, args...)
}

func (c *Controller) log(ctx context.Context, level logLevel, msg string, args ...any) {
	if c.contextualLogger != nil {
		switch level {
		case levelDebug:
			c.contextualLogger.DebugContext(ctx, msg, args...)
		case levelInfo:
			c.contextualLogger.InfoContext(ctx, msg, args...)
		case levelWarn:
			c.contextualLogger.WarnContext(ctx, msg, args...)
		default:
			c.contextualLogger.ErrorContext(ctx, msg, args...)
		}

		return
	}

	if c.logger == nil {
		return
	}

	switch level {
	case levelDebug:
		c.logger.Debug(msg, args...)
	case levelInfo:
		c.logger.Info(msg, args...)
	case levelWarn:
		c.logger.Warn(msg, args...)
	default:
		c.logger.Error(msg, args...)
	}
}

// StatusOf classifies an operation error into a metric/log status.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, circulation.ErrBusinessRuleViolation):
		return StatusRejected
	case errors.Is(err, circulation.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, circulation.ErrInvariantViolation):
		return StatusInvariantViolation
	default:
		return StatusError
	}
}

func rejectionLabel(err error, status string) string {
	if reason := circulation.ReasonOf(err); reason != "" {
		return reason.String()
	}

	var notFound *circulation.NotFoundError
	if errors.As(err, &notFound) {
		return notFound.Entity + "_not_found"
	}

	return status
}

func recordDuration(ctx context.Context, collector circulation.MetricsCollector, metric string, d time.Duration, labels map[string]string) {
	if contextual, ok := collector.(circulation.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	collector.RecordDuration(metric, d, labels)
}

func incrementCounter(ctx context.Context, collector circulation.MetricsCollector, metric string, labels map[string]string) {
	if contextual, ok := collector.(circulation.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	collector.IncrementCounter(metric, labels)
}

func recordValue(ctx context.Context, collector circulation.MetricsCollector, metric string, value float64, labels map[string]string) {
	if collector == nil {
		return
	}

	if contextual, ok := collector.(circulation.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	collector.RecordValue(metric, value, labels)
}

// spanAttrs converts slog-style key/value pairs into span attributes.
func spanAttrs(operation string, kv []any) map[string]string {
	attrs := make(map[string]string, 1+len(kv)/2)
	if operation != "" {
		attrs[LogAttrOperation] = operation
	}

	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}

		switch v := kv[i+1].(type) {
		case string:
			attrs[key] = v
		case interface{ String() string }:
			attrs[key] = v.String()
		case int:
			attrs[key] = strconv.Itoa(v)
		}
	}

	return attrs
}

func toMilliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
