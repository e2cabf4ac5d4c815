package repository

// Schema definitions for the Lanemeter rule store.
// Compatible with both SQLite and PostgreSQL.
//
// Every rule table shares the same scoping columns; the variant-specific
// fields live in the payload JSON column.

const schemaCategoryGroups = `
CREATE TABLE IF NOT EXISTS category_groups (
    id INTEGER PRIMARY KEY,
    carrier_id TEXT NOT NULL,
    code TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_category_groups_carrier ON category_groups(carrier_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_category_groups_code ON category_groups(carrier_id, code);
`

const schemaCategoryGroupMembers = `
CREATE TABLE IF NOT EXISTS category_group_members (
    group_id INTEGER NOT NULL,
    category TEXT NOT NULL,
    PRIMARY KEY (group_id, category)
);

CREATE INDEX IF NOT EXISTS idx_group_members_category ON category_group_members(category);
`

const schemaAcceptanceRules = `
CREATE TABLE IF NOT EXISTS acceptance_rules (
    id INTEGER PRIMARY KEY,
    carrier_id TEXT NOT NULL,
    port_id TEXT,
    category TEXT,
    category_group_id INTEGER,
    vessel_name TEXT,
    vessel_class TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    effective_from TIMESTAMP,
    effective_to TIMESTAMP,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_acceptance_rules_carrier ON acceptance_rules(carrier_id, active);
`

const schemaClassificationBands = `
CREATE TABLE IF NOT EXISTS classification_bands (
    id INTEGER PRIMARY KEY,
    carrier_id TEXT NOT NULL,
    port_id TEXT,
    category TEXT,
    category_group_id INTEGER,
    vessel_name TEXT,
    vessel_class TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    effective_from TIMESTAMP,
    effective_to TIMESTAMP,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classification_bands_carrier ON classification_bands(carrier_id, active);
`

const schemaTransformRules = `
CREATE TABLE IF NOT EXISTS transform_rules (
    id INTEGER PRIMARY KEY,
    carrier_id TEXT NOT NULL,
    port_id TEXT,
    category TEXT,
    category_group_id INTEGER,
    vessel_name TEXT,
    vessel_class TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    effective_from TIMESTAMP,
    effective_to TIMESTAMP,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transform_rules_carrier ON transform_rules(carrier_id, active);
`

const schemaSurchargeRules = `
CREATE TABLE IF NOT EXISTS surcharge_rules (
    id INTEGER PRIMARY KEY,
    carrier_id TEXT NOT NULL,
    port_id TEXT,
    category TEXT,
    category_group_id INTEGER,
    vessel_name TEXT,
    vessel_class TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    effective_from TIMESTAMP,
    effective_to TIMESTAMP,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_surcharge_rules_carrier ON surcharge_rules(carrier_id, active);
`

// surcharge_article_maps carries the event code as a column so map
// lookup can filter without parsing payloads.
const schemaArticleMaps = `
CREATE TABLE IF NOT EXISTS surcharge_article_maps (
    id INTEGER PRIMARY KEY,
    carrier_id TEXT NOT NULL,
    port_id TEXT,
    category TEXT,
    category_group_id INTEGER,
    vessel_name TEXT,
    vessel_class TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    effective_from TIMESTAMP,
    effective_to TIMESTAMP,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    event_code TEXT NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_article_maps_carrier ON surcharge_article_maps(carrier_id, active);
CREATE INDEX IF NOT EXISTS idx_article_maps_event ON surcharge_article_maps(carrier_id, event_code);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCategoryGroups,
		schemaCategoryGroupMembers,
		schemaAcceptanceRules,
		schemaClassificationBands,
		schemaTransformRules,
		schemaSurchargeRules,
		schemaArticleMaps,
	}
}
