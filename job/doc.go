// Package job defines the job entity, its state machine, typed executor
// definitions, the executor registry and the store contract.
//
// # Job Entity
//
// A [Job] is a unit of schedulable work. It carries an opaque payload,
// a [Priority] and an optional set of dependencies, and progresses
// through a state machine:
//
//	pending → running → completed
//	pending → running → pending (retry after backoff) → running → ...
//	pending → running → failed → pending (explicit retry)
//	pending → cancelled
//	running → cancelled (advisory; the unit of work is not interrupted)
//
// # Defining an Executor
//
// Use [Definition] with a typed handler. The payload is JSON-encoded at
// submission and decoded before the handler runs; the returned value is
// JSON-encoded into the job's Result:
//
//	var Export = job.NewDefinition("export",
//	    func(ctx context.Context, in ExportInput, report job.ReportFunc) (ExportResult, error) {
//	        for i, note := range in.Notes {
//	            report(int64(i+1), int64(len(in.Notes)), note)
//	        }
//	        return ExportResult{Files: len(in.Notes)}, nil
//	    },
//	)
//
// # Registry
//
// [Registry] maps job kinds to type-erased [HandlerFunc] values. Register
// definitions at startup via [RegisterDefinition] or raw handlers via
// [Registry.Register].
package job
