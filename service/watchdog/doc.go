// Package watchdog supervises the external service process. A monitoring
// loop checks liveness by process id, restarts the process through a
// Launcher with capped exponential backoff and exposes a stability predicate
// used to gate outbound requests.
package watchdog
