package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ignite/vintner-crm/internal/domain"
)

type memDispatchRepo struct {
	summary *domain.RunSummary
	actions []domain.NextActionOutput
	recos   []domain.RecoOutput
	clients []domain.Client
	events  []*domain.ContactEvent
}

func (m *memDispatchRepo) GetRunSummary(ctx context.Context, tenantID int64, runID string) (*domain.RunSummary, error) {
	return m.summary, nil
}

func (m *memDispatchRepo) ListEligibleActions(ctx context.Context, tenantID int64, runID string) ([]domain.NextActionOutput, error) {
	return m.actions, nil
}

func (m *memDispatchRepo) ListRecoOutputs(ctx context.Context, tenantID int64, runID string) ([]domain.RecoOutput, error) {
	return m.recos, nil
}

func (m *memDispatchRepo) ListClients(ctx context.Context, tenantID int64) ([]domain.Client, error) {
	return m.clients, nil
}

func (m *memDispatchRepo) InsertContactEvent(ctx context.Context, ev *domain.ContactEvent) error {
	m.events = append(m.events, ev)
	return nil
}

type fakeSender struct {
	sent    []Message
	failFor map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, msg Message) error {
	if f.failFor[msg.To] {
		return errors.New("provider rejected the message")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func gatedSummary(t *testing.T, gate bool) *domain.RunSummary {
	t.Helper()
	encoded, err := domain.EncodeRunSummary(domain.RunSummaryData{GateExport: gate, TotalClients: 2})
	if err != nil {
		t.Fatal(err)
	}
	return &domain.RunSummary{RunID: "run-1", TenantID: 1, SummaryJSON: encoded}
}

func fixtureDispatchRepo(t *testing.T) *memDispatchRepo {
	return &memDispatchRepo{
		summary: gatedSummary(t, true),
		actions: []domain.NextActionOutput{
			{RunID: "run-1", CustomerCode: "ALPHA", Eligible: true, Scenario: domain.ScenarioRebuy},
			{RunID: "run-1", CustomerCode: "BETA", Eligible: true, Scenario: domain.ScenarioWinback},
		},
		recos: []domain.RecoOutput{
			{RunID: "run-1", CustomerCode: "ALPHA", Rank: 2, ProductKey: "p2", ExplainShort: "second pick"},
			{RunID: "run-1", CustomerCode: "ALPHA", Rank: 1, ProductKey: "p1", ExplainShort: "time to restock Cuvee A"},
		},
		clients: []domain.Client{
			{ID: 1, ClientCode: "ALPHA", Email: "alpha@example.com"},
			{ID: 2, ClientCode: "BETA", Email: "beta@example.com"},
		},
	}
}

func TestDispatchDryRunByDefault(t *testing.T) {
	repo := fixtureDispatchRepo(t)
	sender := &fakeSender{}
	svc := New(repo, sender, Config{})

	res, err := svc.Dispatch(context.Background(), 1, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.DryRun {
		t.Error("dry-run must be the default")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("dry-run performed %d sends", len(sender.sent))
	}
	if len(repo.events) != 2 {
		t.Fatalf("events = %d, want one per eligible client", len(repo.events))
	}
	for _, ev := range repo.events {
		if ev.Status != domain.ContactDryRun {
			t.Errorf("event status = %s, want %s", ev.Status, domain.ContactDryRun)
		}
		if ev.CampaignID != "run-1" || ev.Channel != "email" {
			t.Errorf("event = %+v", ev)
		}
	}
	if res.Sent != 2 || res.Batches != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchRefusesGatedRun(t *testing.T) {
	repo := fixtureDispatchRepo(t)
	repo.summary = gatedSummary(t, false)
	svc := New(repo, &fakeSender{}, Config{})

	_, err := svc.Dispatch(context.Background(), 1, "run-1")
	if !errors.Is(err, ErrExportGated) {
		t.Fatalf("err = %v, want ErrExportGated", err)
	}
	if domain.KindOf(err) != domain.KindConflict {
		t.Errorf("kind = %s, want Conflict", domain.KindOf(err))
	}
	if len(repo.events) != 0 {
		t.Error("gated run must not record contact events")
	}
}

func TestDispatchLiveSendUsesTopRecommendation(t *testing.T) {
	repo := fixtureDispatchRepo(t)
	sender := &fakeSender{}
	svc := New(repo, sender, Config{LiveSend: true})

	res, err := svc.Dispatch(context.Background(), 1, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.DryRun || res.Sent != 2 {
		t.Fatalf("result = %+v", res)
	}
	var alpha *Message
	for i := range sender.sent {
		if sender.sent[i].To == "alpha@example.com" {
			alpha = &sender.sent[i]
		}
	}
	if alpha == nil || alpha.Body != "time to restock Cuvee A" {
		t.Errorf("alpha message = %+v, want the rank-1 explanation", alpha)
	}
	for _, ev := range repo.events {
		if ev.Status != domain.ContactDelivered {
			t.Errorf("event status = %s, want delivered", ev.Status)
		}
	}
}

func TestDispatchLiveSendFailureIsCounted(t *testing.T) {
	repo := fixtureDispatchRepo(t)
	sender := &fakeSender{failFor: map[string]bool{"beta@example.com": true}}
	svc := New(repo, sender, Config{LiveSend: true})

	res, err := svc.Dispatch(context.Background(), 1, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	// No contact event for the failed send.
	if len(repo.events) != 1 || repo.events[0].ClientID != 1 {
		t.Errorf("events = %+v", repo.events)
	}
}

func TestDispatchSkipsUnknownClients(t *testing.T) {
	repo := fixtureDispatchRepo(t)
	repo.actions = append(repo.actions, domain.NextActionOutput{RunID: "run-1", CustomerCode: "GHOST", Eligible: true})
	svc := New(repo, &fakeSender{}, Config{})

	res, err := svc.Dispatch(context.Background(), 1, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Sent != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchBatching(t *testing.T) {
	repo := &memDispatchRepo{summary: gatedSummary(t, true)}
	for i := 0; i < 450; i++ {
		code := fmt.Sprintf("C%03d", i)
		repo.actions = append(repo.actions, domain.NextActionOutput{RunID: "run-1", CustomerCode: code, Eligible: true})
		repo.clients = append(repo.clients, domain.Client{ID: int64(i + 1), ClientCode: code, Email: code + "@example.com"})
	}
	svc := New(repo, &fakeSender{}, Config{})

	res, err := svc.Dispatch(context.Background(), 1, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	// 450 clients at the minimum batch size of 200: three batches.
	if res.Batches != 3 || res.Sent != 450 {
		t.Errorf("result = %+v", res)
	}
}

func TestClampBatch(t *testing.T) {
	cases := [][2]int{{0, 200}, {50, 200}, {250, 250}, {1000, 300}}
	for _, tc := range cases {
		if got := clampBatch(tc[0]); got != tc[1] {
			t.Errorf("clampBatch(%d) = %d, want %d", tc[0], got, tc[1])
		}
	}
}
