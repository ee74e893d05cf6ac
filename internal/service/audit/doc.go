// Package audit holds the two rule surfaces of the platform.
//
// The gating engine evaluates a fixed rule set against each (client,
// run) pair and decides marketing eligibility; its aggregate gates the
// whole run's export. Rule violations are data, never errors: they
// lower scores and flip gates but cannot abort a run.
//
// The separate data-quality audit scans the loaded state itself
// (clients, products, sales) and writes an AuditLog row. It shares the
// scoring formula with the gating engine but not the rule set.
package audit
