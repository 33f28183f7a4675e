// Package constants holds tunables shared across the scheduler's
// internal packages.
package constants

import "time"

const (
	// DefaultNumPorts is the default number of request types (TSKQ queues)
	// when a Config does not specify one.
	DefaultNumPorts = 4

	// MaxPorts bounds the number of distinct request types / TSKQ queues.
	MaxPorts = 64

	// DefaultBatch is the maximum number of requests the networker moves
	// into its mailbox, and the dispatcher refills, per iteration.
	DefaultBatch = 32

	// DefaultMempoolCapacity is the default cell count for a datastore when
	// a caller doesn't size it explicitly.
	DefaultMempoolCapacity = 4096

	// MaxFragmentsPerRequest bounds the packet list a single Request holds
	// (K in the data model).
	MaxFragmentsPerRequest = 16

	// DefaultPreemptionDelay is used when a Config leaves PreemptionDelay
	// at its zero value (disables preemption — matches slo=∞ scenarios).
	DefaultPreemptionDelay = time.Duration(0)

	// CacheLineSize is the cache-line size assumed for keeping
	// single-writer/single-reader records on distinct cache lines; the
	// mailbox package pads its records with its own 64-byte cacheLinePad.
	CacheLineSize = 64

	// DispatcherIdleYield is zero, matching the dispatcher loop
	// (Scheduler.runDispatcherLoop), which spins between iterations with
	// no sleep in every build, tests and race-detector builds included.
	// The loop does not read this constant.
	DispatcherIdleYield = 0
)
