// Package chainorch orchestrates chain allocation and result submission
// against an external node service.
//
// The service process is supervised by a watchdog. Allocations ("open" jobs)
// and result submissions ("submit" jobs) run on separate worker pools, and open
// jobs take priority: while any allocation is pending, submissions are parked
// in a durable overflow queue and replayed once the last allocation finishes.
// All state is mirrored to JSON documents so that a restart resumes where the
// previous process stopped.
//
//	srv, _ := chainorch.New(ctx, cfg)
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	record, _ := rt.EnqueueOpen(ctx, "alice", "bob")
//	receipt, _ := rt.EnqueueSubmit(ctx, record.ChainID, result)
//	_ = rt.Shutdown(ctx)
package chainorch
