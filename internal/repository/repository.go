// Package repository provides the SQL-backed rule store.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Rule tables. All share the scoping-column layout of ruleColumns.
const (
	tableAcceptance     = "acceptance_rules"
	tableClassification = "classification_bands"
	tableTransform      = "transform_rules"
	tableSurcharge      = "surcharge_rules"
	tableArticleMaps    = "surcharge_article_maps"
)

const ruleColumns = `id, carrier_id, port_id, category, category_group_id,
	vessel_name, vessel_class, priority, effective_from, effective_to,
	active, created_at, payload`

// scopeFilter matches carrier, active flag, effective window, and the
// wildcard scope dimensions: a rule row matches when each of its
// populated dimensions equals the filter value. Binding NULL for an
// unpopulated filter dimension leaves only wildcard rows matching.
const scopeFilter = `carrier_id = ?
	AND active = 1
	AND (effective_from IS NULL OR effective_from <= ?)
	AND (effective_to IS NULL OR effective_to >= ?)
	AND (port_id IS NULL OR port_id = ?)
	AND (category IS NULL OR category = ?)
	AND (category_group_id IS NULL OR category_group_id = ?)
	AND (vessel_name IS NULL OR vessel_name = ?)
	AND (vessel_class IS NULL OR vessel_class = ?)`

// SQLRepository implements domain.RuleStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new rule store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.RuleStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

type ruleRow struct {
	meta    domain.RuleMeta
	payload []byte
}

func scopeArgs(scope domain.Scope) []any {
	now := time.Now().UTC()
	return []any{
		scope.CarrierID, now, now,
		scope.PortID, scope.Category, scope.CategoryGroupID,
		scope.VesselName, scope.VesselClass,
	}
}

func (r *SQLRepository) queryRules(ctx context.Context, table, where string, args []any) ([]ruleRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY id`, ruleColumns, table, where)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ruleRow
	for rows.Next() {
		row, err := scanRuleRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

func scanRuleRow(rows *sql.Rows) (ruleRow, error) {
	var row ruleRow
	var port, category, vesselName, vesselClass sql.NullString
	var groupID sql.NullInt64
	var from, to sql.NullTime
	var active int
	var payload string

	err := rows.Scan(
		&row.meta.ID, &row.meta.CarrierID,
		&port, &category, &groupID, &vesselName, &vesselClass,
		&row.meta.Priority, &from, &to,
		&active, &row.meta.CreatedAt, &payload,
	)
	if err != nil {
		return row, err
	}

	row.meta.PortID = nullStr(port)
	row.meta.Category = nullStr(category)
	row.meta.VesselName = nullStr(vesselName)
	row.meta.VesselClass = nullStr(vesselClass)
	row.meta.CategoryGroupID = nullInt(groupID)
	row.meta.EffectiveFrom = nullTime(from)
	row.meta.EffectiveTo = nullTime(to)
	row.meta.Active = active == 1
	row.payload = []byte(payload)

	return row, nil
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// saveRule upserts one rule row. A zero ID gets the next id for the
// table; the caller's meta is updated in place so new ids are visible
// to the caller.
func (r *SQLRepository) saveRule(ctx context.Context, table string, meta *domain.RuleMeta, spec any, extraCols []string, extraVals []any) error {
	if meta.CarrierID == "" {
		return fmt.Errorf("%w: carrierID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to encode rule payload: %w", err)
	}

	if meta.ID == 0 {
		id, err := r.nextID(ctx, table)
		if err != nil {
			return err
		}
		meta.ID = id
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	active := 0
	if meta.Active {
		active = 1
	}

	cols := []string{
		"id", "carrier_id", "port_id", "category", "category_group_id",
		"vessel_name", "vessel_class", "priority", "effective_from",
		"effective_to", "active", "created_at", "payload",
	}
	args := []any{
		meta.ID, meta.CarrierID, meta.PortID, meta.Category, meta.CategoryGroupID,
		meta.VesselName, meta.VesselClass, meta.Priority, meta.EffectiveFrom,
		meta.EffectiveTo, active, meta.CreatedAt, string(payload),
	}
	cols = append(cols, extraCols...)
	args = append(args, extraVals...)

	query := upsertQuery(table, cols)

	_, err = r.db.ExecContext(ctx, r.rebind(query), args...)
	return err
}

// upsertQuery builds an INSERT ... ON CONFLICT(id) DO UPDATE statement
// updating every column except the primary key.
func upsertQuery(table string, cols []string) string {
	placeholders := ""
	colList := ""
	updates := ""
	for i, col := range cols {
		if i > 0 {
			colList += ", "
			placeholders += ", "
		}
		colList += col
		placeholders += "?"
		if col == "id" {
			continue
		}
		if updates != "" {
			updates += ", "
		}
		updates += col + " = excluded." + col
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		table, colList, placeholders, updates)
}

func (r *SQLRepository) nextID(ctx context.Context, table string) (int64, error) {
	var id int64
	query := fmt.Sprintf(`SELECT COALESCE(MAX(id), 0) + 1 FROM %s`, table)
	if err := r.db.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate rule id: %w", err)
	}
	return id, nil
}

// AcceptanceRules returns the acceptance candidates matching the scope.
func (r *SQLRepository) AcceptanceRules(ctx context.Context, scope domain.Scope) ([]*domain.AcceptanceRule, error) {
	rows, err := r.queryRules(ctx, tableAcceptance, scopeFilter, scopeArgs(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to query acceptance rules: %w", err)
	}

	rules := make([]*domain.AcceptanceRule, 0, len(rows))
	for _, row := range rows {
		rule := &domain.AcceptanceRule{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &rule.AcceptanceSpec); err != nil {
			return nil, fmt.Errorf("acceptance rule %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ClassificationBands returns the classification candidates matching
// the scope.
func (r *SQLRepository) ClassificationBands(ctx context.Context, scope domain.Scope) ([]*domain.ClassificationBand, error) {
	rows, err := r.queryRules(ctx, tableClassification, scopeFilter, scopeArgs(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to query classification bands: %w", err)
	}

	bands := make([]*domain.ClassificationBand, 0, len(rows))
	for _, row := range rows {
		band := &domain.ClassificationBand{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &band.ClassificationSpec); err != nil {
			return nil, fmt.Errorf("classification band %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		bands = append(bands, band)
	}
	return bands, nil
}

// TransformRules returns the transform candidates matching the scope.
func (r *SQLRepository) TransformRules(ctx context.Context, scope domain.Scope) ([]*domain.TransformRule, error) {
	rows, err := r.queryRules(ctx, tableTransform, scopeFilter, scopeArgs(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to query transform rules: %w", err)
	}

	rules := make([]*domain.TransformRule, 0, len(rows))
	for _, row := range rows {
		rule := &domain.TransformRule{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &rule.TransformSpec); err != nil {
			return nil, fmt.Errorf("transform rule %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// SurchargeRules returns the surcharge candidates matching the scope,
// with their calculation parameters decoded.
func (r *SQLRepository) SurchargeRules(ctx context.Context, scope domain.Scope) ([]*domain.SurchargeRule, error) {
	rows, err := r.queryRules(ctx, tableSurcharge, scopeFilter, scopeArgs(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to query surcharge rules: %w", err)
	}

	rules := make([]*domain.SurchargeRule, 0, len(rows))
	for _, row := range rows {
		rule := &domain.SurchargeRule{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &rule.SurchargeSpec); err != nil {
			return nil, fmt.Errorf("surcharge rule %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		if err := rule.DecodeParams(); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ArticleMaps returns the article-map candidates for the scope and
// event code.
func (r *SQLRepository) ArticleMaps(ctx context.Context, scope domain.Scope, eventCode string) ([]*domain.SurchargeArticleMap, error) {
	where := scopeFilter + ` AND event_code = ?`
	args := append(scopeArgs(scope), eventCode)

	rows, err := r.queryRules(ctx, tableArticleMaps, where, args)
	if err != nil {
		return nil, fmt.Errorf("failed to query article maps: %w", err)
	}

	maps := make([]*domain.SurchargeArticleMap, 0, len(rows))
	for _, row := range rows {
		m := &domain.SurchargeArticleMap{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &m.ArticleMapSpec); err != nil {
			return nil, fmt.Errorf("article map %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		maps = append(maps, m)
	}
	return maps, nil
}

// CategoryGroupByCategory returns the active group whose membership
// list contains the category, or nil when no group claims it.
func (r *SQLRepository) CategoryGroupByCategory(ctx context.Context, carrierID, category string) (*domain.CategoryGroup, error) {
	if carrierID == "" {
		return nil, fmt.Errorf("%w: carrierID is required", ErrInvalidInput)
	}

	query := `
		SELECT g.id, g.carrier_id, g.code, g.active
		FROM category_groups g
		JOIN category_group_members m ON m.group_id = g.id
		WHERE g.carrier_id = ? AND g.active = 1 AND m.category = ?
		ORDER BY g.id DESC
		LIMIT 1
	`

	var group domain.CategoryGroup
	var active int
	err := r.db.QueryRowContext(ctx, r.rebind(query), carrierID, category).Scan(
		&group.ID, &group.CarrierID, &group.Code, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category group: %w", err)
	}
	group.Active = active == 1

	members, err := r.groupMembers(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	group.Categories = members

	return &group, nil
}

func (r *SQLRepository) groupMembers(ctx context.Context, groupID int64) ([]string, error) {
	query := `SELECT category FROM category_group_members WHERE group_id = ? ORDER BY category`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		members = append(members, category)
	}
	return members, rows.Err()
}

// SaveAcceptanceRule upserts an acceptance rule.
func (r *SQLRepository) SaveAcceptanceRule(ctx context.Context, rule *domain.AcceptanceRule) error {
	return r.saveRule(ctx, tableAcceptance, &rule.RuleMeta, rule.AcceptanceSpec, nil, nil)
}

// SaveClassificationBand upserts a classification band.
func (r *SQLRepository) SaveClassificationBand(ctx context.Context, band *domain.ClassificationBand) error {
	return r.saveRule(ctx, tableClassification, &band.RuleMeta, band.ClassificationSpec, nil, nil)
}

// SaveTransformRule upserts a transform rule.
func (r *SQLRepository) SaveTransformRule(ctx context.Context, rule *domain.TransformRule) error {
	return r.saveRule(ctx, tableTransform, &rule.RuleMeta, rule.TransformSpec, nil, nil)
}

// SaveSurchargeRule upserts a surcharge rule. The parameter bag is
// decoded and validated before anything is written.
func (r *SQLRepository) SaveSurchargeRule(ctx context.Context, rule *domain.SurchargeRule) error {
	if err := rule.DecodeParams(); err != nil {
		return err
	}
	return r.saveRule(ctx, tableSurcharge, &rule.RuleMeta, rule.SurchargeSpec, nil, nil)
}

// SaveArticleMap upserts a surcharge article map.
func (r *SQLRepository) SaveArticleMap(ctx context.Context, m *domain.SurchargeArticleMap) error {
	if m.EventCode == "" {
		return fmt.Errorf("%w: eventCode is required", ErrInvalidInput)
	}
	return r.saveRule(ctx, tableArticleMaps, &m.RuleMeta, m.ArticleMapSpec,
		[]string{"event_code"}, []any{m.EventCode})
}

// SaveCategoryGroup upserts a category group and replaces its
// membership list.
func (r *SQLRepository) SaveCategoryGroup(ctx context.Context, group *domain.CategoryGroup) error {
	if group.CarrierID == "" {
		return fmt.Errorf("%w: carrierID is required", ErrInvalidInput)
	}
	if group.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidInput)
	}

	if group.ID == 0 {
		id, err := r.nextID(ctx, "category_groups")
		if err != nil {
			return err
		}
		group.ID = id
	}

	active := 0
	if group.Active {
		active = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO category_groups (id, carrier_id, code, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			carrier_id = excluded.carrier_id,
			code = excluded.code,
			active = excluded.active
	`
	if _, err := tx.ExecContext(ctx, r.rebind(upsert),
		group.ID, group.CarrierID, group.Code, active, time.Now().UTC()); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM category_group_members WHERE group_id = ?`), group.ID); err != nil {
		return err
	}
	for _, category := range group.Categories {
		if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO category_group_members (group_id, category) VALUES (?, ?)`), group.ID, category); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListAcceptanceRules returns all acceptance rules for a carrier,
// active or not.
func (r *SQLRepository) ListAcceptanceRules(ctx context.Context, carrierID string) ([]*domain.AcceptanceRule, error) {
	rows, err := r.listRules(ctx, tableAcceptance, carrierID)
	if err != nil {
		return nil, err
	}

	rules := make([]*domain.AcceptanceRule, 0, len(rows))
	for _, row := range rows {
		rule := &domain.AcceptanceRule{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &rule.AcceptanceSpec); err != nil {
			return nil, fmt.Errorf("acceptance rule %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ListClassificationBands returns all classification bands for a
// carrier.
func (r *SQLRepository) ListClassificationBands(ctx context.Context, carrierID string) ([]*domain.ClassificationBand, error) {
	rows, err := r.listRules(ctx, tableClassification, carrierID)
	if err != nil {
		return nil, err
	}

	bands := make([]*domain.ClassificationBand, 0, len(rows))
	for _, row := range rows {
		band := &domain.ClassificationBand{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &band.ClassificationSpec); err != nil {
			return nil, fmt.Errorf("classification band %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		bands = append(bands, band)
	}
	return bands, nil
}

// ListTransformRules returns all transform rules for a carrier.
func (r *SQLRepository) ListTransformRules(ctx context.Context, carrierID string) ([]*domain.TransformRule, error) {
	rows, err := r.listRules(ctx, tableTransform, carrierID)
	if err != nil {
		return nil, err
	}

	rules := make([]*domain.TransformRule, 0, len(rows))
	for _, row := range rows {
		rule := &domain.TransformRule{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &rule.TransformSpec); err != nil {
			return nil, fmt.Errorf("transform rule %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ListSurchargeRules returns all surcharge rules for a carrier.
func (r *SQLRepository) ListSurchargeRules(ctx context.Context, carrierID string) ([]*domain.SurchargeRule, error) {
	rows, err := r.listRules(ctx, tableSurcharge, carrierID)
	if err != nil {
		return nil, err
	}

	rules := make([]*domain.SurchargeRule, 0, len(rows))
	for _, row := range rows {
		rule := &domain.SurchargeRule{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &rule.SurchargeSpec); err != nil {
			return nil, fmt.Errorf("surcharge rule %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		if err := rule.DecodeParams(); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ListArticleMaps returns all article maps for a carrier.
func (r *SQLRepository) ListArticleMaps(ctx context.Context, carrierID string) ([]*domain.SurchargeArticleMap, error) {
	rows, err := r.listRules(ctx, tableArticleMaps, carrierID)
	if err != nil {
		return nil, err
	}

	maps := make([]*domain.SurchargeArticleMap, 0, len(rows))
	for _, row := range rows {
		m := &domain.SurchargeArticleMap{RuleMeta: row.meta}
		if err := json.Unmarshal(row.payload, &m.ArticleMapSpec); err != nil {
			return nil, fmt.Errorf("article map %d: %w: %v", row.meta.ID, domain.ErrInvalidRuleParams, err)
		}
		maps = append(maps, m)
	}
	return maps, nil
}

func (r *SQLRepository) listRules(ctx context.Context, table, carrierID string) ([]ruleRow, error) {
	if carrierID == "" {
		return nil, fmt.Errorf("%w: carrierID is required", ErrInvalidInput)
	}

	rows, err := r.queryRules(ctx, table, `carrier_id = ?`, []any{carrierID})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	return rows, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
