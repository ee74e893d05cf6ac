// Package metrics recomputes the derived per-client and per-product
// analytics from the loaded sales history: RFM scores and segments,
// preferred families and budget bands, product popularity, aroma
// profiles and K-means behaviour clusters.
//
// Every computation is idempotent and tenant-scoped. Callers serialize
// recomputation against recommendation runs with the tenant writer lock.
package metrics
