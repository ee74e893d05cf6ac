// Package domain defines the core entities of the platform.
//
// Every business entity carries a TenantID and is strictly partitioned by it;
// cross-tenant reads are never legal. Services and repositories exchange these
// types only. JSON payloads stored in text columns (preferred families, aroma
// profiles, run summaries) have typed encode/decode helpers here so no layer
// touches raw blobs.
package domain
