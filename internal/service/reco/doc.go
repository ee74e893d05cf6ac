// Package reco runs the scenario-driven recommendation engine. A run
// loads the tenant's curated state, chooses a scenario per client,
// generates and scores candidate products, gates the results through
// the audit rules and persists everything under a fresh run id.
//
// Runs move running → completed or running → failed, never back. A
// failed run keeps its trace row but none of its outputs, so readers
// only ever see complete runs.
package reco
