package postgres

import (
	"context"

	"github.com/ignite/vintner-crm/internal/domain"
)

// ListProducts returns every product of a tenant, ordered by product_key.
func (s *Store) ListProducts(ctx context.Context, tenantID int64) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, product_key, COALESCE(name, ''), COALESCE(family_crm, ''),
			COALESCE(sub_family, ''), COALESCE(cepage, ''), COALESCE(sucrosite_niveau, ''),
			price_ttc, margin, COALESCE(premium_tier, ''), COALESCE(price_band, ''),
			aroma_fruit, aroma_floral, aroma_spice, aroma_mineral, aroma_acidity, aroma_body, aroma_tannin,
			global_popularity_score, COALESCE(season_tags, ''), is_active, is_archived
		FROM products
		WHERE tenant_id = $1
		ORDER BY product_key`, tenantID)
	if err != nil {
		return nil, classify("postgres.ListProducts", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		err := rows.Scan(
			&p.ID, &p.TenantID, &p.ProductKey, &p.Name, &p.FamilyCRM,
			&p.SubFamily, &p.Cepage, &p.SucrositeNiveau,
			&p.PriceTTC, &p.Margin, &p.PremiumTier, &p.PriceBand,
			&p.AromaFruit, &p.AromaFloral, &p.AromaSpice, &p.AromaMineral,
			&p.AromaAcidity, &p.AromaBody, &p.AromaTannin,
			&p.GlobalPopularityScore, &p.SeasonTags, &p.IsActive, &p.IsArchived,
		)
		if err != nil {
			return nil, classify("postgres.ListProducts", err)
		}
		products = append(products, p)
	}
	return products, classify("postgres.ListProducts", rows.Err())
}

// InsertProducts upserts loaded catalogue rows by (tenant_id, product_key).
func (s *Store) InsertProducts(ctx context.Context, products []domain.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("postgres.InsertProducts", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (tenant_id, product_key, name, family_crm, sub_family, cepage,
			sucrosite_niveau, price_ttc, margin, premium_tier, price_band,
			aroma_fruit, aroma_floral, aroma_spice, aroma_mineral, aroma_acidity, aroma_body, aroma_tannin,
			season_tags, is_active, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (tenant_id, product_key) DO UPDATE SET
			name = EXCLUDED.name,
			family_crm = EXCLUDED.family_crm,
			sub_family = EXCLUDED.sub_family,
			cepage = EXCLUDED.cepage,
			sucrosite_niveau = EXCLUDED.sucrosite_niveau,
			price_ttc = EXCLUDED.price_ttc,
			margin = EXCLUDED.margin,
			premium_tier = EXCLUDED.premium_tier,
			price_band = EXCLUDED.price_band,
			aroma_fruit = EXCLUDED.aroma_fruit,
			aroma_floral = EXCLUDED.aroma_floral,
			aroma_spice = EXCLUDED.aroma_spice,
			aroma_mineral = EXCLUDED.aroma_mineral,
			aroma_acidity = EXCLUDED.aroma_acidity,
			aroma_body = EXCLUDED.aroma_body,
			aroma_tannin = EXCLUDED.aroma_tannin,
			season_tags = EXCLUDED.season_tags,
			is_active = EXCLUDED.is_active,
			is_archived = EXCLUDED.is_archived`)
	if err != nil {
		return classify("postgres.InsertProducts", err)
	}
	defer stmt.Close()

	for i := range products {
		p := &products[i]
		_, err := stmt.ExecContext(ctx,
			p.TenantID, p.ProductKey, p.Name, p.FamilyCRM, p.SubFamily, p.Cepage,
			p.SucrositeNiveau, p.PriceTTC, p.Margin, p.PremiumTier, p.PriceBand,
			p.AromaFruit, p.AromaFloral, p.AromaSpice, p.AromaMineral, p.AromaAcidity, p.AromaBody, p.AromaTannin,
			p.SeasonTags, p.IsActive, p.IsArchived)
		if err != nil {
			return classify("postgres.InsertProducts", err)
		}
	}
	return classify("postgres.InsertProducts", tx.Commit())
}

// UpdateProductPopularity sets global_popularity_score per product_key.
func (s *Store) UpdateProductPopularity(ctx context.Context, tenantID int64, scores map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("postgres.UpdateProductPopularity", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE products SET global_popularity_score = $3
		WHERE tenant_id = $1 AND product_key = $2`)
	if err != nil {
		return classify("postgres.UpdateProductPopularity", err)
	}
	defer stmt.Close()

	for key, score := range scores {
		if _, err := stmt.ExecContext(ctx, tenantID, key, score); err != nil {
			return classify("postgres.UpdateProductPopularity", err)
		}
	}
	return classify("postgres.UpdateProductPopularity", tx.Commit())
}

// ProductNames returns the raw product name → product_key mapping the
// loader uses as its alias fallback.
func (s *Store) ProductNames(ctx context.Context, tenantID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(name, ''), product_key
		FROM products
		WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, classify("postgres.ProductNames", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var name, key string
		if err := rows.Scan(&name, &key); err != nil {
			return nil, classify("postgres.ProductNames", err)
		}
		if name != "" {
			names[name] = key
		}
	}
	return names, classify("postgres.ProductNames", rows.Err())
}

// AliasMap returns the tenant's label_norm → product_key mapping.
func (s *Store) AliasMap(ctx context.Context, tenantID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label_norm, product_key
		FROM product_alias
		WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, classify("postgres.AliasMap", err)
	}
	defer rows.Close()

	aliases := make(map[string]string)
	for rows.Next() {
		var norm, key string
		if err := rows.Scan(&norm, &key); err != nil {
			return nil, classify("postgres.AliasMap", err)
		}
		aliases[norm] = key
	}
	return aliases, classify("postgres.AliasMap", rows.Err())
}

// UpsertAlias records or refreshes one label mapping. label_norm is
// unique per tenant.
func (s *Store) UpsertAlias(ctx context.Context, alias *domain.ProductAlias) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO product_alias (tenant_id, label_norm, product_key, label_raw, confidence, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (tenant_id, label_norm) DO UPDATE SET
			product_key = EXCLUDED.product_key,
			label_raw = EXCLUDED.label_raw,
			confidence = EXCLUDED.confidence,
			source = EXCLUDED.source,
			updated_at = NOW()
		RETURNING id`,
		alias.TenantID, alias.LabelNorm, alias.ProductKey, alias.LabelRaw, alias.Confidence, alias.Source,
	).Scan(&alias.ID)
	return classify("postgres.UpsertAlias", err)
}
