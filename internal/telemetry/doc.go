// Package telemetry wires OpenTelemetry tracing and metrics for escrowd.
//
// Task operations open a span each (task.create, task.submit_allocation,
// task.claim) and record counters through the meter returned here.
// Export goes to an OTLP collector over gRPC or HTTP/protobuf:
//
//	tel, err := telemetry.New(ctx, telemetry.FromServiceConfig(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	svc := task.NewService(taskCfg, ledger, emitter, logger,
//	    task.WithTracer(tel.Tracer("escrowd.task")),
//	    task.WithMeter(tel.Meter("escrowd.task")))
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
