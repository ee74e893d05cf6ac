package domain

import (
	"encoding/json"
	"time"
)

// Budget bands derived from the tenant-local AOV distribution
// (<=q33 Low, <=q66 Medium, else High).
const (
	BudgetLow    = "Low"
	BudgetMedium = "Medium"
	BudgetHigh   = "High"
)

// RFM segments, assigned from the R/F/M component scores.
const (
	SegmentChampions   = "Champions"
	SegmentLoyal       = "Loyal Customers"
	SegmentBigSpenders = "Big Spenders"
	SegmentRecent      = "Recent Customers"
	SegmentPromising   = "Promising"
	SegmentAtRisk      = "At Risk"
	SegmentOthers      = "Others"
)

// Client is a wine merchant's customer with its derived analytics state.
// The derived fields (RFM components, preferences, aroma profile, cluster)
// are owned by the metrics services and recomputed on demand.
type Client struct {
	ID                int64
	TenantID          int64
	ClientCode        string
	Name              string
	Email             string
	LastPurchaseDate  *time.Time
	TotalSpent        float64
	TotalOrders       int
	AverageOrderValue float64
	Recency           *float64 // days since last purchase
	Frequency         *float64
	Monetary          *float64
	RFMScore          int // R*100 + F*10 + M, each component 1..5
	RFMSegment        string
	PreferredFamilies string // JSON, see FamilyPreferences
	BudgetBand        string
	AromaProfile      string // JSON, see AromaProfileData
	Cluster           string // "cN" label from K-means
	LastContactDate   *time.Time
	EmailOptOut       bool
}

// RFMComponents splits a composite score back into its R, F, M digits.
func (c *Client) RFMComponents() (r, f, m int) {
	return c.RFMScore / 100, (c.RFMScore / 10) % 10, c.RFMScore % 10
}

// FamilyPreference is one entry of a client's top purchased families.
type FamilyPreference struct {
	Family string  `json:"family"`
	Share  float64 `json:"share"`
}

// FamilyPreferences is the typed form of Client.PreferredFamilies.
type FamilyPreferences struct {
	SchemaVersion int                `json:"schema_version"`
	Families      []FamilyPreference `json:"families"`
}

// EncodeFamilyPreferences serializes preferences for the text column.
func EncodeFamilyPreferences(p FamilyPreferences) (string, error) {
	if p.SchemaVersion == 0 {
		p.SchemaVersion = 1
	}
	b, err := json.Marshal(p)
	return string(b), err
}

// DecodeFamilyPreferences parses the stored JSON. Empty input decodes to a
// zero preference set rather than an error.
func DecodeFamilyPreferences(s string) (FamilyPreferences, error) {
	var p FamilyPreferences
	if s == "" {
		return p, nil
	}
	err := json.Unmarshal([]byte(s), &p)
	return p, err
}

// FamilySet returns the preferred family names as a lookup set.
func (p FamilyPreferences) FamilySet() map[string]bool {
	set := make(map[string]bool, len(p.Families))
	for _, f := range p.Families {
		if f.Family != "" {
			set[f.Family] = true
		}
	}
	return set
}

// Coverage is the summed share of the top two preferred families.
func (p FamilyPreferences) Coverage() float64 {
	total := 0.0
	for i, f := range p.Families {
		if i >= 2 {
			break
		}
		total += f.Share
	}
	return total
}

// Aroma confidence levels.
const (
	AromaLevelHigh   = "High"
	AromaLevelMedium = "Medium"
	AromaLevelLow    = "Low"
)

// AromaAxis names the seven sensory axes, in canonical order.
var AromaAxisNames = []string{"fruit", "floral", "spice", "mineral", "acidity", "body", "tannin"}

// AromaTopAxis is one of the strongest axes of a profile.
type AromaTopAxis struct {
	Axis  string  `json:"axis"`
	Value float64 `json:"value"`
}

// AromaProfileData is the typed form of Client.AromaProfile.
// Axis values are normalized to [0,1].
type AromaProfileData struct {
	SchemaVersion int                `json:"schema_version"`
	Axes          map[string]float64 `json:"axes"`
	TopAxes       []AromaTopAxis     `json:"top_axes"`
	Confidence    float64            `json:"confidence"`
	Level         string             `json:"level"`
}

// EncodeAromaProfile serializes an aroma profile for the text column.
func EncodeAromaProfile(p AromaProfileData) (string, error) {
	if p.SchemaVersion == 0 {
		p.SchemaVersion = 1
	}
	b, err := json.Marshal(p)
	return string(b), err
}

// DecodeAromaProfile parses the stored JSON; empty input yields a zero profile.
func DecodeAromaProfile(s string) (AromaProfileData, error) {
	var p AromaProfileData
	if s == "" {
		return p, nil
	}
	err := json.Unmarshal([]byte(s), &p)
	return p, err
}

// Tenant is the root of isolation. Tenants are created by administration and
// never deleted while dependent rows exist.
type Tenant struct {
	ID        int64
	Name      string
	Domain    string
	CreatedAt time.Time
}
