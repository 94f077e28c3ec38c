package models

const (
	// DefaultUpcomingLimit is how many entries the upcoming feed shows.
	DefaultUpcomingLimit = 30

	// WorkerQueueSize is the in-memory mirror queue capacity.
	WorkerQueueSize = 1000

	// SheetsCacheTTL lifetime of the spreadsheet row cache, in seconds.
	SheetsCacheTTL = 60 * 60

	// HealthProbeInterval between adapter health checks, in seconds.
	HealthProbeInterval = 30
)
