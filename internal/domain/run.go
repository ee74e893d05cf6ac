package domain

import (
	"encoding/json"
	"time"
)

// Scenario is the marketing intent chosen per client.
type Scenario string

const (
	ScenarioWinback   Scenario = "winback"
	ScenarioRebuy     Scenario = "rebuy"
	ScenarioCrossSell Scenario = "cross_sell"
	ScenarioUpsell    Scenario = "upsell"
	ScenarioNurture   Scenario = "nurture"
)

// Scenarios lists all scenarios in canonical order.
var Scenarios = []Scenario{ScenarioWinback, ScenarioRebuy, ScenarioCrossSell, ScenarioUpsell, ScenarioNurture}

// Run statuses. Transitions are running → completed|failed, never back.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RecoRun traces one recommendation pipeline execution for a tenant.
type RecoRun struct {
	ID             int64
	TenantID       int64
	RunID          string // opaque, unique
	StartedAt      time.Time
	FinishedAt     *time.Time
	DatasetVersion string // hash of the raw files the loaded state came from
	ConfigHash     string
	CodeVersion    string
	Status         string
}

// RecoOutput is one ranked suggestion slot of a run. For each
// (run_id, customer_code) the ranks are contiguous from 1 and product keys
// are distinct.
type RecoOutput struct {
	ID           int64
	RunID        string
	TenantID     int64
	CustomerCode string
	Scenario     Scenario
	Rank         int
	ProductKey   string
	Score        float64
	ExplainShort string
	ReasonsJSON  string
}

// ScoreReasons is the typed form of RecoOutput.ReasonsJSON: the per-term
// contributions behind a composite score.
type ScoreReasons struct {
	SchemaVersion int     `json:"schema_version"`
	Popularity    float64 `json:"popularity"`
	PriceFit      float64 `json:"price_fit"`
	FamilyFit     float64 `json:"family_fit"`
	RFMNorm       float64 `json:"rfm_norm"`
	Seasonality   float64 `json:"seasonality"`
}

// EncodeScoreReasons serializes reasons for the text column.
func EncodeScoreReasons(r ScoreReasons) (string, error) {
	if r.SchemaVersion == 0 {
		r.SchemaVersion = 1
	}
	b, err := json.Marshal(r)
	return string(b), err
}

// DecodeScoreReasons parses stored reasons; empty input yields zero reasons.
func DecodeScoreReasons(s string) (ScoreReasons, error) {
	var r ScoreReasons
	if s == "" {
		return r, nil
	}
	err := json.Unmarshal([]byte(s), &r)
	return r, err
}

// Audit severities.
const (
	SeverityError = "ERROR"
	SeverityWarn  = "WARN"
)

// AuditOutput is one rule violation recorded for a (run, client).
type AuditOutput struct {
	ID           int64
	RunID        string
	TenantID     int64
	CustomerCode string
	Severity     string
	RuleCode     string
	DetailsJSON  string
}

// NextActionOutput is the per-client gating verdict of a run. CustomerCode is
// unique within a run.
type NextActionOutput struct {
	ID           int64
	RunID        string
	TenantID     int64
	CustomerCode string
	Eligible     bool
	Reason       string
	Scenario     Scenario
	AuditScore   int // 0..100
}

// RuleCount pairs a rule code with its occurrence count.
type RuleCount struct {
	RuleCode string `json:"rule_code"`
	Count    int    `json:"count"`
}

// RunSummaryData is the typed form of RunSummary.SummaryJSON.
type RunSummaryData struct {
	SchemaVersion        int              `json:"schema_version"`
	GatingRate           float64          `json:"gating_rate"`
	TotalClients         int              `json:"total_clients"`
	TotalRecommendations int              `json:"total_recommendations"`
	ScenarioCounts       map[Scenario]int `json:"scenario_counts"`
	TopErrors            []RuleCount      `json:"top_errors"`
	NErrors              int              `json:"n_errors"`
	NWarns               int              `json:"n_warns"`
	AuditScore           int              `json:"audit_score"`
	GateExport           bool             `json:"gate_export"`
}

// RunSummary is the persisted run-level aggregate. RunID is unique per tenant.
type RunSummary struct {
	ID          int64
	RunID       string
	TenantID    int64
	SummaryJSON string
}

// EncodeRunSummary serializes the aggregate for the text column.
func EncodeRunSummary(d RunSummaryData) (string, error) {
	if d.SchemaVersion == 0 {
		d.SchemaVersion = 1
	}
	b, err := json.Marshal(d)
	return string(b), err
}

// DecodeRunSummary parses a stored summary; empty input yields a zero summary.
func DecodeRunSummary(s string) (RunSummaryData, error) {
	var d RunSummaryData
	if s == "" {
		return d, nil
	}
	err := json.Unmarshal([]byte(s), &d)
	return d, err
}

// AuditLog is a data-quality audit record, distinct from the run-level
// AuditOutput surface. Both share the score formula only.
type AuditLog struct {
	ID         int64
	TenantID   int64
	ExecutedAt time.Time
	Errors     int
	Warnings   int
	Score      float64
	Details    string
}
