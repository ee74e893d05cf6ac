package postgres

import (
	"context"
	"database/sql"

	"github.com/ignite/vintner-crm/internal/domain"
)

const clientColumns = `id, tenant_id, client_code, COALESCE(name, ''), COALESCE(email, ''),
	last_purchase_date, total_spent, total_orders, average_order_value,
	recency, frequency, monetary, rfm_score, COALESCE(rfm_segment, ''),
	COALESCE(preferred_families, ''), COALESCE(budget_band, ''),
	COALESCE(aroma_profile, ''), COALESCE(cluster, ''), last_contact_date, email_opt_out`

// ListClients returns every client of a tenant, ordered by client_code.
func (s *Store) ListClients(ctx context.Context, tenantID int64) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE tenant_id = $1
		ORDER BY client_code`, tenantID)
	if err != nil {
		return nil, classify("postgres.ListClients", err)
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, classify("postgres.ListClients", err)
		}
		clients = append(clients, *c)
	}
	return clients, classify("postgres.ListClients", rows.Err())
}

func scanClient(rows *sql.Rows) (*domain.Client, error) {
	var c domain.Client
	err := rows.Scan(
		&c.ID, &c.TenantID, &c.ClientCode, &c.Name, &c.Email,
		&c.LastPurchaseDate, &c.TotalSpent, &c.TotalOrders, &c.AverageOrderValue,
		&c.Recency, &c.Frequency, &c.Monetary, &c.RFMScore, &c.RFMSegment,
		&c.PreferredFamilies, &c.BudgetBand,
		&c.AromaProfile, &c.Cluster, &c.LastContactDate, &c.EmailOptOut,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertClients upserts loaded client rows by (tenant_id, client_code).
// The load wins on identity fields; derived fields stay untouched.
func (s *Store) InsertClients(ctx context.Context, clients []domain.Client) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("postgres.InsertClients", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clients (tenant_id, client_code, name, email, budget_band, rfm_segment)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (tenant_id, client_code) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email`)
	if err != nil {
		return classify("postgres.InsertClients", err)
	}
	defer stmt.Close()

	for i := range clients {
		c := &clients[i]
		if _, err := stmt.ExecContext(ctx, c.TenantID, c.ClientCode, c.Name, c.Email, c.BudgetBand, c.RFMSegment); err != nil {
			return classify("postgres.InsertClients", err)
		}
	}
	return classify("postgres.InsertClients", tx.Commit())
}

// UpdateClients persists the derived analytics fields, matched by
// (tenant_id, client_code).
func (s *Store) UpdateClients(ctx context.Context, clients []domain.Client) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("postgres.UpdateClients", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE clients SET
			last_purchase_date = $3,
			total_spent = $4,
			total_orders = $5,
			average_order_value = $6,
			recency = $7,
			frequency = $8,
			monetary = $9,
			rfm_score = $10,
			rfm_segment = $11,
			preferred_families = $12,
			budget_band = $13,
			aroma_profile = $14,
			cluster = $15
		WHERE tenant_id = $1 AND client_code = $2`)
	if err != nil {
		return classify("postgres.UpdateClients", err)
	}
	defer stmt.Close()

	for i := range clients {
		c := &clients[i]
		_, err := stmt.ExecContext(ctx,
			c.TenantID, c.ClientCode,
			c.LastPurchaseDate, c.TotalSpent, c.TotalOrders, c.AverageOrderValue,
			c.Recency, c.Frequency, c.Monetary, c.RFMScore, c.RFMSegment,
			c.PreferredFamilies, c.BudgetBand, c.AromaProfile, c.Cluster)
		if err != nil {
			return classify("postgres.UpdateClients", err)
		}
	}
	return classify("postgres.UpdateClients", tx.Commit())
}

// ListContactEvents returns every contact event of a tenant, newest first.
func (s *Store) ListContactEvents(ctx context.Context, tenantID int64) ([]domain.ContactEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, client_id, contact_date, COALESCE(channel, ''), COALESCE(status, ''), COALESCE(campaign_id, '')
		FROM contact_events
		WHERE tenant_id = $1
		ORDER BY contact_date DESC`, tenantID)
	if err != nil {
		return nil, classify("postgres.ListContactEvents", err)
	}
	defer rows.Close()

	var events []domain.ContactEvent
	for rows.Next() {
		var ev domain.ContactEvent
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.ClientID, &ev.ContactDate, &ev.Channel, &ev.Status, &ev.CampaignID); err != nil {
			return nil, classify("postgres.ListContactEvents", err)
		}
		events = append(events, ev)
	}
	return events, classify("postgres.ListContactEvents", rows.Err())
}

// InsertContactEvent records one marketing touch.
func (s *Store) InsertContactEvent(ctx context.Context, ev *domain.ContactEvent) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO contact_events (tenant_id, client_id, contact_date, channel, status, campaign_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		ev.TenantID, ev.ClientID, ev.ContactDate, ev.Channel, ev.Status, ev.CampaignID,
	).Scan(&ev.ID)
	return classify("postgres.InsertContactEvent", err)
}
