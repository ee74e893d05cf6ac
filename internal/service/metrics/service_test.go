package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
)

type memRepo struct {
	clients  []domain.Client
	products []domain.Product
	sales    []domain.Sale

	popularity map[string]float64
}

func (m *memRepo) ListClients(ctx context.Context, tenantID int64) ([]domain.Client, error) {
	out := make([]domain.Client, len(m.clients))
	copy(out, m.clients)
	return out, nil
}

func (m *memRepo) ListProducts(ctx context.Context, tenantID int64) ([]domain.Product, error) {
	return m.products, nil
}

func (m *memRepo) ListSales(ctx context.Context, tenantID int64) ([]domain.Sale, error) {
	return m.sales, nil
}

func (m *memRepo) UpdateClients(ctx context.Context, clients []domain.Client) error {
	for _, u := range clients {
		for i := range m.clients {
			if m.clients[i].ClientCode == u.ClientCode {
				m.clients[i] = u
			}
		}
	}
	return nil
}

func (m *memRepo) UpdateProductPopularity(ctx context.Context, tenantID int64, scores map[string]float64) error {
	m.popularity = scores
	return nil
}

func (m *memRepo) client(code string) *domain.Client {
	for i := range m.clients {
		if m.clients[i].ClientCode == code {
			return &m.clients[i]
		}
	}
	return nil
}

func f(v float64) *float64 { return &v }

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestComputeRFMSingleSale(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	repo := &memRepo{
		clients: []domain.Client{{TenantID: 1, ClientCode: "c1"}},
		sales: []domain.Sale{
			{TenantID: 1, DocumentID: "INV-1", ProductKey: "P1", ClientCode: "c1", Amount: f(100), SaleDate: date(today)},
		},
	}
	svc := New(repo, Config{KMeansSeed: 42})

	if err := svc.ComputeRFM(context.Background(), 1); err != nil {
		t.Fatalf("rfm: %v", err)
	}

	c := repo.client("c1")
	if c.TotalSpent != 100 || c.TotalOrders != 1 || c.AverageOrderValue != 100 {
		t.Errorf("aggregates = %v/%v/%v, want 100/1/100", c.TotalSpent, c.TotalOrders, c.AverageOrderValue)
	}
	// Sole client: most recent quintile for R, lowest for F and M.
	if c.RFMScore != 511 {
		t.Errorf("rfm_score = %d, want 511", c.RFMScore)
	}
	r, fScore, mScore := c.RFMComponents()
	if r != 5 || fScore != 1 || mScore != 1 {
		t.Errorf("components = %d/%d/%d, want 5/1/1", r, fScore, mScore)
	}
}

func TestComputeRFMScoreComposition(t *testing.T) {
	repo := &memRepo{
		clients: []domain.Client{
			{TenantID: 1, ClientCode: "old"},
			{TenantID: 1, ClientCode: "mid"},
			{TenantID: 1, ClientCode: "new"},
		},
		sales: []domain.Sale{
			{TenantID: 1, DocumentID: "D1", ClientCode: "old", Amount: f(10), SaleDate: date("2024-01-01")},
			{TenantID: 1, DocumentID: "D2", ClientCode: "mid", Amount: f(50), SaleDate: date("2024-05-01")},
			{TenantID: 1, DocumentID: "D3", ClientCode: "mid", Amount: f(50), SaleDate: date("2024-05-02")},
			{TenantID: 1, DocumentID: "D4", ClientCode: "new", Amount: f(200), SaleDate: date("2024-08-01")},
			{TenantID: 1, DocumentID: "D5", ClientCode: "new", Amount: f(200), SaleDate: date("2024-08-10")},
			{TenantID: 1, DocumentID: "D6", ClientCode: "new", Amount: f(200), SaleDate: date("2024-08-20")},
		},
	}
	svc := New(repo, Config{KMeansSeed: 42})

	if err := svc.ComputeRFM(context.Background(), 1); err != nil {
		t.Fatalf("rfm: %v", err)
	}

	for _, code := range []string{"old", "mid", "new"} {
		c := repo.client(code)
		r, fc, m := c.RFMComponents()
		if c.RFMScore != r*100+fc*10+m {
			t.Errorf("%s: rfm_score %d does not decompose to %d/%d/%d", code, c.RFMScore, r, fc, m)
		}
		for _, comp := range []int{r, fc, m} {
			if comp < 1 || comp > 5 {
				t.Errorf("%s: component %d out of 1..5", code, comp)
			}
		}
	}
	// The most recent, most frequent, biggest spender dominates on all axes.
	newest := repo.client("new")
	oldest := repo.client("old")
	if newest.RFMScore <= oldest.RFMScore {
		t.Errorf("new (%d) should outscore old (%d)", newest.RFMScore, oldest.RFMScore)
	}
	if oldest.RFMSegment != domain.SegmentAtRisk {
		t.Errorf("old segment = %q, want At Risk", oldest.RFMSegment)
	}
}

func TestComputePreferencesAndBudget(t *testing.T) {
	repo := &memRepo{
		clients: []domain.Client{
			{TenantID: 1, ClientCode: "c1", AverageOrderValue: 10},
			{TenantID: 1, ClientCode: "c2", AverageOrderValue: 50},
			{TenantID: 1, ClientCode: "c3", AverageOrderValue: 200},
		},
		products: []domain.Product{
			{TenantID: 1, ProductKey: "P1", FamilyCRM: "Rouge"},
			{TenantID: 1, ProductKey: "P2", FamilyCRM: "Blanc"},
			{TenantID: 1, ProductKey: "P3", FamilyCRM: "Crémant"},
		},
		sales: []domain.Sale{
			{TenantID: 1, DocumentID: "D1", ProductKey: "P1", ClientCode: "c1"},
			{TenantID: 1, DocumentID: "D2", ProductKey: "P1", ClientCode: "c1"},
			{TenantID: 1, DocumentID: "D3", ProductKey: "P2", ClientCode: "c1"},
			{TenantID: 1, DocumentID: "D4", ProductKey: "P3", ClientCode: "c1"},
		},
	}
	svc := New(repo, Config{KMeansSeed: 42})

	if err := svc.ComputePreferences(context.Background(), 1); err != nil {
		t.Fatalf("preferences: %v", err)
	}

	prefs, err := domain.DecodeFamilyPreferences(repo.client("c1").PreferredFamilies)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(prefs.Families) != 2 {
		t.Fatalf("families = %+v, want top 2", prefs.Families)
	}
	if prefs.Families[0].Family != "Rouge" || prefs.Families[0].Share != 0.5 {
		t.Errorf("top family = %+v, want Rouge/0.5", prefs.Families[0])
	}

	if got := repo.client("c1").BudgetBand; got != domain.BudgetLow {
		t.Errorf("c1 band = %q, want Low", got)
	}
	if got := repo.client("c2").BudgetBand; got != domain.BudgetMedium {
		t.Errorf("c2 band = %q, want Medium", got)
	}
	if got := repo.client("c3").BudgetBand; got != domain.BudgetHigh {
		t.Errorf("c3 band = %q, want High", got)
	}
}

func TestComputePopularity(t *testing.T) {
	repo := &memRepo{
		products: []domain.Product{
			{TenantID: 1, ProductKey: "P1"},
			{TenantID: 1, ProductKey: "P2"},
			{TenantID: 1, ProductKey: "P3"},
		},
		sales: []domain.Sale{
			{TenantID: 1, DocumentID: "D1", ProductKey: "P1", ClientCode: "c1"},
			{TenantID: 1, DocumentID: "D2", ProductKey: "P1", ClientCode: "c2"},
			{TenantID: 1, DocumentID: "D3", ProductKey: "P1", ClientCode: "c3"},
			{TenantID: 1, DocumentID: "D4", ProductKey: "P2", ClientCode: "c1"},
		},
	}
	svc := New(repo, Config{KMeansSeed: 42})

	if err := svc.ComputePopularity(context.Background(), 1); err != nil {
		t.Fatalf("popularity: %v", err)
	}

	want := map[string]float64{"P1": 0.75, "P2": 0.25, "P3": 0}
	for key, score := range want {
		if got := repo.popularity[key]; got != score {
			t.Errorf("popularity[%s] = %v, want %v", key, got, score)
		}
		if got := repo.popularity[key]; got < 0 || got > 1 {
			t.Errorf("popularity[%s] = %v out of [0,1]", key, got)
		}
	}
}

func TestComputeAromaProfiles(t *testing.T) {
	repo := &memRepo{
		clients: []domain.Client{
			{TenantID: 1, ClientCode: "c1"},
			{TenantID: 1, ClientCode: "empty"},
		},
		products: []domain.Product{
			{TenantID: 1, ProductKey: "P1", AromaFruit: 5, AromaBody: 2.5},
		},
		sales: []domain.Sale{
			{TenantID: 1, DocumentID: "D1", ProductKey: "P1", ClientCode: "c1", Amount: f(10)},
		},
	}
	svc := New(repo, Config{KMeansSeed: 42})

	if err := svc.ComputeAromaProfiles(context.Background(), 1); err != nil {
		t.Fatalf("aroma: %v", err)
	}

	profile, err := domain.DecodeAromaProfile(repo.client("c1").AromaProfile)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.Axes["fruit"] != 1.0 {
		t.Errorf("fruit axis = %v, want 1.0 (5/5)", profile.Axes["fruit"])
	}
	if profile.Axes["body"] != 0.5 {
		t.Errorf("body axis = %v, want 0.5", profile.Axes["body"])
	}
	if len(profile.TopAxes) != 3 || profile.TopAxes[0].Axis != "fruit" {
		t.Errorf("top_axes = %+v, want fruit first", profile.TopAxes)
	}
	if profile.Confidence < 0 || profile.Confidence > 1 {
		t.Errorf("confidence %v out of [0,1]", profile.Confidence)
	}

	empty, err := domain.DecodeAromaProfile(repo.client("empty").AromaProfile)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if empty.Level != domain.AromaLevelLow || empty.Confidence != 0 {
		t.Errorf("no-purchase profile = %+v, want Low/0", empty)
	}
}

func TestComputeClustersDeterministic(t *testing.T) {
	clients := []domain.Client{
		{TenantID: 1, ClientCode: "a", Recency: f(1), Frequency: f(10), Monetary: f(500)},
		{TenantID: 1, ClientCode: "b", Recency: f(2), Frequency: f(9), Monetary: f(480)},
		{TenantID: 1, ClientCode: "c", Recency: f(300), Frequency: f(1), Monetary: f(10)},
		{TenantID: 1, ClientCode: "d", Recency: f(310), Frequency: f(1), Monetary: f(12)},
		{TenantID: 1, ClientCode: "nulls"},
	}

	run := func() map[string]string {
		repo := &memRepo{clients: append([]domain.Client(nil), clients...)}
		svc := New(repo, Config{KMeansClusters: 2, KMeansSeed: 42})
		counts, err := svc.ComputeClusters(context.Background(), 1)
		if err != nil {
			t.Fatalf("clusters: %v", err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		if total != 4 {
			t.Fatalf("clustered %d clients, want 4 (nulls skipped)", total)
		}
		out := make(map[string]string)
		for _, c := range repo.clients {
			out[c.ClientCode] = c.Cluster
		}
		return out
	}

	first := run()
	second := run()
	for code, label := range first {
		if second[code] != label {
			t.Errorf("%s: label changed across seeded runs: %q vs %q", code, label, second[code])
		}
	}
	if first["nulls"] != "" {
		t.Errorf("client with null components must not be clustered, got %q", first["nulls"])
	}
	// The two behaviour groups must not share a cluster.
	if first["a"] != first["b"] || first["c"] != first["d"] || first["a"] == first["c"] {
		t.Errorf("unexpected clustering: %v", first)
	}
}

func TestQuantileInterpolation(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	if got := quantile(values, 0.5); got != 25 {
		t.Errorf("median = %v, want 25", got)
	}
	if got := quantile(values, 0); got != 10 {
		t.Errorf("q0 = %v, want 10", got)
	}
	if got := quantile(values, 1); got != 40 {
		t.Errorf("q1 = %v, want 40", got)
	}
	if got := quantile(nil, 0.5); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
}
