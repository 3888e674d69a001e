// Package logging provides structured logging for escrowd on top of zap.
//
// The wrapper adds a Trace level below Debug, optional dual output to
// stdout and the OpenTelemetry log bridge, redaction of sensitive keys and
// bearer tokens, and sampling that never drops error-level entries.
//
// Context-aware methods attach correlation fields automatically:
//
//	ctx = logging.WithTaskName(ctx, "bounty-42")
//	logger.Info(ctx, "allocation submitted", zap.Int("recipients", 3))
//
// produces
//
//	{"level":"info","msg":"allocation submitted","caller":"alice","task.name":"bounty-42","recipients":3}
//
// plus trace_id and span_id when an active span is present.
//
// Services that accept a *zap.Logger receive Logger.Underlying(), and call
// ContextFields themselves when logging per-request.
package logging
