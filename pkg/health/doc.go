/*
Package health provides health check mechanisms for monitoring the
scheduler's external collaborators — the metadata log, media-pool
allocator, and routing-map service that the compaction scheduler
depends on but does not implement.

# Architecture

The package follows a modular checker design:

	┌─────────────────────────────────────────────────────────────┐
	│                   Health Check System                       │
	└─────┬──────────────────────────────────────────────────────┘
	      │
	      ▼
	┌──────────────────────────────────────────────────────────────┐
	│                     Checker Interface                        │
	│  • Check(ctx) Result                                         │
	│  • Type() CheckType                                          │
	└────────┬─────────────────────────────────────────────────────┘
	         │
	    ┌────┴──────┬──────────┐
	    ▼           ▼          ▼
	┌────────┐  ┌──────┐  ┌────────┐
	│  HTTP  │  │ TCP  │  │  Exec  │
	│Checker │  │Checker│ │Checker │
	└────────┘  └──────┘  └────────┘
	     │          │          │
	     ▼          ▼          ▼
	  GET /    Connect     Run cmd

# Health Check Types

HTTP checks hit a collaborator's status endpoint and expect a 2xx/3xx
response. TCP checks verify a port is accepting connections (e.g. the
media-pool allocator's RPC listener). Exec checks run a local status
command and treat exit code 0 as healthy (e.g. a vendor-supplied
media-pool CLI probe).

# Status tracking and hysteresis

Status implements hysteresis so a single transient failure does not
flip Scheduler.healthy: several consecutive failures (Config.Retries)
are required before a collaborator is marked unhealthy, and a single
success restores it. The scheduler's monitor loop reads this flag at
the top of every iteration: when unhealthy it stops reclassifying
dirty nodes but keeps draining completions and honoring tree removal.

# Usage

	checker := health.NewHTTPChecker("http://metalog:8080/health")
	checker.WithTimeout(5 * time.Second)

	status := health.NewStatus()
	config := health.DefaultConfig()

	result := checker.Check(ctx)
	status.Update(result, config)

	if !status.Healthy {
		// feed into csched.Scheduler's healthy flag
	}
*/
package health
