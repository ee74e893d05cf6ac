// Package export writes a completed run's artifacts to disk: the
// ranked recommendations, the audit findings, the per-client verdicts
// as CSV, and the run summary as JSON. An optional uploader mirrors
// every artifact to S3.
package export
