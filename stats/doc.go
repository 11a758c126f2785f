// Package stats implements streaming column statistics over Arrow columns.
// Accumulators update from whole columns, merge across records, and back the
// profiling and preparation-planning machinery.
package stats
