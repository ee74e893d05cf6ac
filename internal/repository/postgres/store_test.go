package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/service/reco"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func f(v float64) *float64 { return &v }

func TestListClientsScansDerivedFields(t *testing.T) {
	store, mock := newMockStore(t)

	last := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "client_code", "name", "email",
		"last_purchase_date", "total_spent", "total_orders", "average_order_value",
		"recency", "frequency", "monetary", "rfm_score", "rfm_segment",
		"preferred_families", "budget_band", "aroma_profile", "cluster",
		"last_contact_date", "email_opt_out",
	}).AddRow(
		1, 7, "ALPHA", "Alpha SARL", "alpha@example.com",
		last, 420.0, 3, 140.0,
		10.5, 3.0, 420.0, 435, "Champions",
		`{"families":[]}`, "High", "", "c2",
		nil, false,
	)
	mock.ExpectQuery("SELECT (.+) FROM clients").WithArgs(int64(7)).WillReturnRows(rows)

	clients, err := store.ListClients(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 1 {
		t.Fatalf("clients = %d", len(clients))
	}
	c := clients[0]
	if c.ClientCode != "ALPHA" || c.RFMScore != 435 || c.RFMSegment != "Champions" {
		t.Errorf("client = %+v", c)
	}
	if c.Recency == nil || *c.Recency != 10.5 || c.LastPurchaseDate == nil {
		t.Errorf("nullable fields: %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInsertSalesUpsertsByNaturalKey(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO sales (.+) ON CONFLICT \(tenant_id, document_id, product_key, client_code\)`)
	prep.ExpectExec().
		WithArgs(int64(7), "D1", "p1", "C1", 2.0, 40.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(int64(7), "D2", "p2", "C1", 1.0, 30.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	saleDate := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	err := store.InsertSales(context.Background(), []domain.Sale{
		{TenantID: 7, DocumentID: "D1", ProductKey: "p1", ClientCode: "C1", Quantity: f(2), Amount: f(40), SaleDate: &saleDate},
		{TenantID: 7, DocumentID: "D2", ProductKey: "p2", ClientCode: "C1", Quantity: f(1), Amount: f(30), SaleDate: &saleDate},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInsertSalesIntegrityViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO sales")
	prep.ExpectExec().WillReturnError(&pq.Error{Code: "23503"})
	mock.ExpectRollback()

	err := store.InsertSales(context.Background(), []domain.Sale{
		{TenantID: 7, DocumentID: "D1", ProductKey: "ghost", ClientCode: "C1"},
	})
	if domain.KindOf(err) != domain.KindIntegrityError {
		t.Errorf("kind = %s, want IntegrityError (%v)", domain.KindOf(err), err)
	}
}

func TestFailRunDeletesPartialOutputs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reco_output WHERE run_id").WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM audit_output WHERE run_id").WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM next_action_output WHERE run_id").WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM run_summary WHERE run_id").WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE reco_runs SET status").
		WithArgs("run-1", domain.RunStatusFailed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.FailRun(context.Background(), "run-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveOutputsIsOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	recoPrep := mock.ExpectPrepare("INSERT INTO reco_output")
	recoPrep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	auditPrep := mock.ExpectPrepare("INSERT INTO audit_output")
	auditPrep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	actionPrep := mock.ExpectPrepare("INSERT INTO next_action_output")
	actionPrep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO run_summary").
		WithArgs("run-1", int64(7), `{"schema_version":1}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.SaveOutputs(context.Background(), &reco.RunOutputs{
		Recos: []domain.RecoOutput{{RunID: "run-1", TenantID: 7, CustomerCode: "ALPHA",
			Scenario: domain.ScenarioRebuy, Rank: 1, ProductKey: "p1", Score: 0.8}},
		Audits: []domain.AuditOutput{{RunID: "run-1", TenantID: 7, CustomerCode: "ALPHA",
			Severity: domain.SeverityWarn, RuleCode: "SUGAR_MISMATCH"}},
		Actions: []domain.NextActionOutput{{RunID: "run-1", TenantID: 7, CustomerCode: "ALPHA",
			Eligible: true, Scenario: domain.ScenarioRebuy, AuditScore: 90}},
		Summary: domain.RunSummary{RunID: "run-1", TenantID: 7, SummaryJSON: `{"schema_version":1}`},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetRunSummaryNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM run_summary").
		WithArgs(int64(7), "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetRunSummary(context.Background(), 7, "missing")
	if domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("kind = %s, want NotFound (%v)", domain.KindOf(err), err)
	}
}

func TestListEligibleActionsFilters(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "run_id", "tenant_id", "customer_code", "eligible", "reason", "scenario", "audit_score"}).
		AddRow(1, "run-1", 7, "ALPHA", true, "", "rebuy", 100)
	mock.ExpectQuery(`FROM next_action_output\s+WHERE tenant_id = \$1 AND run_id = \$2 AND eligible`).
		WithArgs(int64(7), "run-1").
		WillReturnRows(rows)

	actions, err := store.ListEligibleActions(context.Background(), 7, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].Scenario != domain.ScenarioRebuy || !actions[0].Eligible {
		t.Errorf("actions = %+v", actions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
