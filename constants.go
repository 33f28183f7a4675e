package dispatchd

import "github.com/nanodispatch/dispatchd/internal/constants"

// Re-export tunables for the public API.
const (
	DefaultNumPorts        = constants.DefaultNumPorts
	MaxPorts               = constants.MaxPorts
	DefaultBatch           = constants.DefaultBatch
	DefaultMempoolCapacity = constants.DefaultMempoolCapacity
	MaxFragmentsPerRequest = constants.MaxFragmentsPerRequest
	DefaultPreemptionDelay = constants.DefaultPreemptionDelay
)
