// Package dispatch turns a gated run into marketing touches. It only
// ever works from completed runs whose summary passed the export gate,
// and it defaults to dry-run: contact events are recorded but nothing
// leaves the machine until live sending is switched on explicitly.
package dispatch
