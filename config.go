package dispatchd

import (
	"time"

	"github.com/nanodispatch/dispatchd/internal/constants"
	"github.com/nanodispatch/dispatchd/internal/reassembly"
)

// Config contains parameters for creating a Scheduler.
type Config struct {
	// NumPorts is the number of request types / TSKQ queues (T in the
	// data model). Each port gets its own SLO entry.
	NumPorts int

	// NumWorkers is the number of worker goroutines, each pinned to its
	// own OS thread (and, where CPUAffinity is set, a specific CPU).
	NumWorkers int

	// SLO is the target latency per port, indexed by port number.
	// len(SLO) must equal NumPorts; a zero entry disables SLO pressure
	// for that port (see TSKQ.SmartDequeue).
	SLO []time.Duration

	// QueueSettings controls whether a preempted task for port i
	// re-enters its TSKQ at the head (true) or tail (false).
	QueueSettings []bool

	// PreemptionDelay is how long a worker may run a task before the
	// dispatcher sends a preempt signal. Zero disables preemption.
	PreemptionDelay time.Duration

	// Batch bounds how many requests the networker moves to its
	// mailbox, and the dispatcher drains, per loop iteration.
	Batch int

	// MempoolCapacity sizes each PerCPU packet-buffer datastore.
	MempoolCapacity int

	// Reassembly controls the request reassembly queue's cell-count
	// bound and optional age-based eviction.
	Reassembly reassembly.Config

	// CPUAffinity pins the dispatcher, networker, and each worker to a
	// specific CPU, indexed [dispatcher, networker, worker0, worker1,
	// ...]. Nil disables pinning.
	CPUAffinity []int

	// CyclesPerIteration calibrates the request body's deterministic
	// CPU-burning kernel: RunNs / CyclesPerIteration yields the
	// iteration count.
	CyclesPerIteration uint64
}

// DefaultConfig returns a Config with every tunable set to its
// constants-package default and a uniform SLO per port.
func DefaultConfig() Config {
	numPorts := constants.DefaultNumPorts
	slo := make([]time.Duration, numPorts)
	for i := range slo {
		slo[i] = 10 * time.Millisecond
	}
	queueSettings := make([]bool, numPorts)

	return Config{
		NumPorts:           numPorts,
		NumWorkers:         4,
		SLO:                slo,
		QueueSettings:      queueSettings,
		PreemptionDelay:    constants.DefaultPreemptionDelay,
		Batch:              constants.DefaultBatch,
		MempoolCapacity:    constants.DefaultMempoolCapacity,
		Reassembly:         reassembly.DefaultConfig(),
		CyclesPerIteration: 1000,
	}
}

// Validate checks Config invariants a Scheduler relies on.
func (c Config) Validate() error {
	if c.NumPorts <= 0 || c.NumPorts > constants.MaxPorts {
		return NewError("Config.Validate", ErrInitFailure, "NumPorts out of range")
	}
	if len(c.SLO) != c.NumPorts {
		return NewError("Config.Validate", ErrInitFailure, "len(SLO) must equal NumPorts")
	}
	if len(c.QueueSettings) != c.NumPorts {
		return NewError("Config.Validate", ErrInitFailure, "len(QueueSettings) must equal NumPorts")
	}
	if c.NumWorkers <= 0 {
		return NewError("Config.Validate", ErrInitFailure, "NumWorkers must be positive")
	}
	if c.Batch <= 0 {
		return NewError("Config.Validate", ErrInitFailure, "Batch must be positive")
	}
	return nil
}
