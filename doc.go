// Package cadence provides an in-process asynchronous job scheduler.
// It runs background units of work without blocking the caller while
// bounding concurrency, ordering work by priority, sequencing jobs through
// dependencies, retrying transient failures with backoff and reporting
// throughput, memory and latency telemetry.
//
// Cadence is a library, not a service. Construct an engine, register one
// executor per job kind and submit work:
//
//	eng, err := engine.New(engine.WithConfig(cfg))
//	engine.Register(eng, job.NewDefinition("export",
//	    func(ctx context.Context, in ExportInput, report job.ReportFunc) (ExportResult, error) {
//	        ...
//	    },
//	))
//	_ = eng.Start(ctx)
//	jobID, err := engine.Submit(ctx, eng, "export", ExportInput{Vault: "notes"},
//	    job.WithPriority(job.PriorityHigh),
//	)
//
// # Architecture
//
// The root package holds configuration, sentinel errors and the shared
// QueueStats snapshot. Subsystems live in their own packages: job (entity,
// registry, store contract), queue (priority lanes, per-kind admission),
// worker (executor and dispatch loop), monitor (performance monitor),
// ext (lifecycle hooks) and engine (the facade tying them together).
//
// All state is held in memory for the lifetime of the process. Every
// engine is independent; nothing is shared through package globals.
package cadence
