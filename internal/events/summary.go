package events

import "time"

// Summary is a snapshot handed to the StatusAggregator. It is a flat
// struct with a Status discriminant rather than a class hierarchy per
// status; only the fields relevant to the current Status are populated.
type Summary struct {
	Machine   string
	Benchmark string
	Status    Status

	// ACTIVE fields.
	BenchmarkStart    time.Time
	LogsPerSec        float64
	IterationsPerSec  float64
	SDCCountTotal     int
	SDCCountRun       int
	LastLogTime       time.Time

	// REBOOTING / SLEEPING fields.
	RebootAttempts    int
	LastActive        time.Time
	LastRebootAttempt time.Time
	MaxRebootAttempts int

	// SLEEPING-only field.
	NextReboot time.Time
}
