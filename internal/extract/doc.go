// Package extract supervises the external extraction tool: it launches
// the subprocess per job, parses its progress stream, classifies exit
// outcomes, and drives the job through tagging to a terminal state.
package extract
