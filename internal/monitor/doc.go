// Package monitor is the polling engine behind fleetmon.
//
// It keeps one SSH connection per server, polls every server on its own
// interval, and records what each poll found.
//
// # Key Components
//
//	Monitor    - Facade the API and CLI talk to; owns everything below
//	Pool       - One pooled connection per server, reused after a liveness check
//	Scheduler  - Tick loop that starts at most one poll cycle per due server
//	Collector  - Runs and parses the command for each metric category
//	History    - Fixed-capacity ring of snapshots per server
//	Jobs       - Bounded log of recent poll cycles
//	Events     - Fan-out of status changes and snapshots to subscribers
//	Telemetry  - Prometheus collectors for the above
//
// # Poll Cycle
//
//  1. The scheduler finds a due server with no cycle in flight
//  2. Status becomes Connecting and the pool hands out a connection
//  3. Every category is collected independently; failures stay per category
//  4. The snapshot is appended to history and the server goes Online
//
// A failed acquire is classified by Classify. Authentication failures pause
// the server until a secret arrives through Monitor.Connect; transient and
// internal failures bump the retry count and the server is tried again on its
// next interval.
//
// # Concurrency
//
// The server set is fixed at construction, so the maps holding per-server
// state are never written after New returns. Each server carries its own
// mutex and an atomic in-flight flag; there is no lock shared across servers.
package monitor
