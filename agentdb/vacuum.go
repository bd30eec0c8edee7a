/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package agentdb

import (
	"context"
	"time"

	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/service"
)

// VacuumWorkerName is used in logs of the periodic vacuum worker.
const VacuumWorkerName = "agentdb-vacuum"

// NewVacuumWorker creates a worker that vacuums the agent database every interval.
// The first run happens after the interval too.
func NewVacuumWorker(s *Store, interval time.Duration, logger log.FieldLogger) *service.PeriodicWorker {
	return service.NewPeriodicWorker(
		service.WorkerFunc(func(ctx context.Context) error {
			return s.Vacuum(ctx)
		}),
		interval,
		logger,
		service.PeriodicWorkerOpts{Name: VacuumWorkerName, InitialDelay: interval},
	)
}
