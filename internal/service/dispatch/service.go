package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/pkg/logger"
)

// ErrExportGated is returned when the run summary failed the export
// gate; nothing is dispatched from such a run.
var ErrExportGated = errors.New("run did not pass the export gate")

// Batch size bounds. Requested sizes are clamped into this range.
const (
	batchMin = 200
	batchMax = 300
)

// Message is one outbound marketing email.
type Message struct {
	To         string
	Subject    string
	Body       string
	CampaignID string
}

// Sender delivers messages. The SES implementation is the only live
// one; tests plug in fakes.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Repository is the store surface of dispatch.
type Repository interface {
	GetRunSummary(ctx context.Context, tenantID int64, runID string) (*domain.RunSummary, error)
	ListEligibleActions(ctx context.Context, tenantID int64, runID string) ([]domain.NextActionOutput, error)
	ListRecoOutputs(ctx context.Context, tenantID int64, runID string) ([]domain.RecoOutput, error)
	ListClients(ctx context.Context, tenantID int64) ([]domain.Client, error)
	InsertContactEvent(ctx context.Context, ev *domain.ContactEvent) error
}

// Config holds dispatch settings. LiveSend off means dry-run.
type Config struct {
	LiveSend  bool
	BatchSize int
	FromEmail string
	Channel   string
}

func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = batchMin
	}
	if c.Channel == "" {
		c.Channel = "email"
	}
}

// Result summarizes one dispatch pass.
type Result struct {
	RunID   string `json:"run_id"`
	DryRun  bool   `json:"dry_run"`
	Batches int    `json:"batches"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

// Service dispatches gated recommendations.
type Service struct {
	repo   Repository
	sender Sender
	cfg    Config
	nowFn  func() time.Time
}

// New creates a dispatch service. sender may be nil when LiveSend is
// off.
func New(repo Repository, sender Sender, cfg Config) *Service {
	cfg.applyDefaults()
	return &Service{repo: repo, sender: sender, cfg: cfg, nowFn: time.Now}
}

// clampBatch forces a requested batch size into the allowed range.
func clampBatch(n int) int {
	if n < batchMin {
		return batchMin
	}
	if n > batchMax {
		return batchMax
	}
	return n
}

// Dispatch contacts every eligible client of a run, in batches. The
// export gate is checked first and is absolute.
func (s *Service) Dispatch(ctx context.Context, tenantID int64, runID string) (*Result, error) {
	raw, err := s.repo.GetRunSummary(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	summary, err := domain.DecodeRunSummary(raw.SummaryJSON)
	if err != nil {
		return nil, domain.E(domain.KindStorageError, "dispatch.Dispatch", err)
	}
	if !summary.GateExport {
		return nil, domain.E(domain.KindConflict, "dispatch.Dispatch", ErrExportGated)
	}

	actions, err := s.repo.ListEligibleActions(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	recos, err := s.repo.ListRecoOutputs(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	clients, err := s.repo.ListClients(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	clientByCode := make(map[string]*domain.Client, len(clients))
	for i := range clients {
		clientByCode[clients[i].ClientCode] = &clients[i]
	}
	topReco := make(map[string]*domain.RecoOutput)
	for i := range recos {
		r := &recos[i]
		if cur, ok := topReco[r.CustomerCode]; !ok || r.Rank < cur.Rank {
			topReco[r.CustomerCode] = r
		}
	}

	res := &Result{RunID: runID, DryRun: !s.cfg.LiveSend}
	batchSize := clampBatch(s.cfg.BatchSize)

	for start := 0; start < len(actions); start += batchSize {
		if err := ctx.Err(); err != nil {
			return res, domain.E(domain.KindCancelled, "dispatch.Dispatch", err)
		}
		end := start + batchSize
		if end > len(actions) {
			end = len(actions)
		}
		res.Batches++

		for _, action := range actions[start:end] {
			client, ok := clientByCode[action.CustomerCode]
			if !ok || client.Email == "" {
				res.Skipped++
				continue
			}

			status := domain.ContactDryRun
			if s.cfg.LiveSend {
				msg := s.buildMessage(client, action, topReco[action.CustomerCode])
				if err := s.sender.Send(ctx, msg); err != nil {
					logger.Error("send failed",
						"tenant_id", tenantID, "run_id", runID,
						"client_code", action.CustomerCode, "error", err.Error())
					res.Failed++
					continue
				}
				status = domain.ContactDelivered
			}

			ev := &domain.ContactEvent{
				TenantID:    tenantID,
				ClientID:    client.ID,
				ContactDate: s.nowFn(),
				Channel:     s.cfg.Channel,
				Status:      status,
				CampaignID:  runID,
			}
			if err := s.repo.InsertContactEvent(ctx, ev); err != nil {
				return res, err
			}
			res.Sent++
		}
	}

	logger.Info("dispatch finished",
		"tenant_id", tenantID, "run_id", runID, "dry_run", res.DryRun,
		"batches", res.Batches, "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

func (s *Service) buildMessage(client *domain.Client, action domain.NextActionOutput, top *domain.RecoOutput) Message {
	subject := fmt.Sprintf("A selection for you (%s)", action.Scenario)
	body := "Our sommeliers picked a few bottles for you."
	if top != nil && top.ExplainShort != "" {
		body = top.ExplainShort
	}
	return Message{
		To:         client.Email,
		Subject:    subject,
		Body:       body,
		CampaignID: action.RunID,
	}
}
