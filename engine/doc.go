// Package engine wires all cadence subsystems together and provides the
// primary application-level API for registering executors, submitting jobs
// and waiting on them.
//
// The engine package exists to break an import cycle: the root cadence
// package defines the configuration and sentinel errors imported by job,
// queue, worker and monitor, and therefore cannot import those packages
// back. Engine sits above all subsystem packages and below the application
// layer.
//
// # Building an Engine
//
//	cfg, err := cadence.LoadConfig("cadence.yaml")
//
//	eng, err := engine.New(
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	    engine.WithQueueConfig(queue.Config{
//	        Kind:           "thumbnail",
//	        MaxConcurrency: 1,
//	    }),
//	)
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(context.Background())
//
// # Registering Executors
//
//	engine.Register(eng, job.NewDefinition("send-email",
//	    func(ctx context.Context, in EmailInput, report job.ReportFunc) (Receipt, error) {
//	        report(1, 2, "rendering")
//	        ...
//	    },
//	))
//
// # Submitting and Waiting
//
//	jobID, err := engine.Submit(ctx, eng, "send-email", EmailInput{To: "user@example.com"},
//	    job.WithPriority(job.PriorityHigh),
//	    job.WithDependencies(renderID),
//	)
//
//	j, err := eng.Wait(ctx, jobID)
//
// # Options
//
//   - [WithConfig]: replace the default configuration
//   - [WithLogger]: set the logger shared by all subsystems
//   - [WithStore]: set the job record store
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithBackoff]: set the retry backoff strategy
//   - [WithQueueConfig]: configure per-kind rate limits and concurrency
//   - [WithThresholds]: tune the performance monitor thresholds
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
//   - [WithMetricFactory]: set the metrics factory
package engine
