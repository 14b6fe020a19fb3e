package postgres

// Schema is the DDL for the registry aggregate. Applied by deployment
// tooling and by the integration test harness; the store itself never runs
// migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS registries (
    id          UUID PRIMARY KEY,
    domain      VARCHAR(255) NOT NULL,
    name        VARCHAR(255) NOT NULL,
    slug        VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    schema      JSONB,
    created_on  TIMESTAMPTZ NOT NULL,
    modified_on TIMESTAMPTZ NOT NULL,
    UNIQUE (domain, slug)
);

CREATE TABLE IF NOT EXISTS registry_invitations (
    id          UUID PRIMARY KEY,
    registry_id UUID NOT NULL REFERENCES registries (id) ON DELETE CASCADE,
    domain      VARCHAR(255) NOT NULL,
    status      VARCHAR(32) NOT NULL DEFAULT 'pending',
    created_on  TIMESTAMPTZ NOT NULL,
    modified_on TIMESTAMPTZ NOT NULL,
    UNIQUE (registry_id, domain)
);

CREATE TABLE IF NOT EXISTS registry_grants (
    id          UUID PRIMARY KEY,
    registry_id UUID NOT NULL REFERENCES registries (id) ON DELETE CASCADE,
    from_domain VARCHAR(255) NOT NULL,
    to_domains  VARCHAR(255)[] NOT NULL,
    created_on  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS registry_permissions (
    registry_id        UUID NOT NULL REFERENCES registries (id) ON DELETE CASCADE,
    domain             VARCHAR(255) NOT NULL,
    read_only_group_id VARCHAR(255),
    PRIMARY KEY (registry_id, domain)
);

CREATE TABLE IF NOT EXISTS registry_audit_log (
    id                  BIGSERIAL PRIMARY KEY,
    registry_id         UUID NOT NULL REFERENCES registries (id) ON DELETE CASCADE,
    date                TIMESTAMPTZ NOT NULL,
    action              VARCHAR(32) NOT NULL,
    domain              VARCHAR(255) NOT NULL,
    user_id             UUID NOT NULL,
    related_object_id   VARCHAR(36) NOT NULL,
    related_object_type VARCHAR(32) NOT NULL,
    detail              JSONB
);

CREATE INDEX IF NOT EXISTS registry_audit_log_domain_idx ON registry_audit_log (domain);
CREATE INDEX IF NOT EXISTS registry_audit_log_action_idx ON registry_audit_log (action);
CREATE INDEX IF NOT EXISTS registry_audit_log_rel_obj_idx ON registry_audit_log (related_object_type);
`
