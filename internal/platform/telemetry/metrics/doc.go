// Package metrics collects operational metrics for batch cred runs.
//
// A run records stage durations, power-iteration counts and the amount of
// grain it distributed. Batch jobs are not scraped, so the registry is written
// to a Prometheus text file (node_exporter textfile collector format) when the
// run finishes.
package metrics
