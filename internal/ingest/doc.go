// Package ingest implements the file pipeline that turns a directory of
// tenant CSV exports into an immutable RAW archive, a normalized staging
// dataset and a curated dataset ready for loading.
//
// Layout on disk, per run:
//
//	{data_dir}/{tenant_id}/runs/{run_id}/raw/      verbatim input copies
//	{data_dir}/{tenant_id}/runs/{run_id}/staging/  column-normalized CSVs
//	{data_dir}/{tenant_id}/runs/{run_id}/curated/  typed, load-ready CSVs
//	{data_dir}/{tenant_id}/runs/{run_id}/report.json
//
// Contract violations never abort a run: curated files are still written
// and the report carries the blocking errors, so the loader can refuse
// the affected tables while the rest of the dataset proceeds.
package ingest
