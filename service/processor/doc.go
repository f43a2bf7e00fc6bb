// Package processor schedules open and submit jobs on two worker pools.
//
// Open jobs always take priority: while any open job is pending, new submit
// jobs are spilled to the durable overflow queue and acknowledged as queued,
// and submit workers hold back until the last pending open completes. Before
// each live submit a worker drains the overflow queue one pass.
package processor
