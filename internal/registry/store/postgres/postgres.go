// Package postgres implements the registry store over database/sql.
//
// Mutations pick up an ambient transaction from context (pkg/platform/tx)
// so the service can commit a state change and its audit row atomically.
// Unique-constraint violations surface as sentinel.ErrConflict.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"caseregistry/internal/registry/models"
	"caseregistry/internal/registry/store"
	id "caseregistry/pkg/domain"
	"caseregistry/pkg/platform/sentinel"
	txcontext "caseregistry/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Store implements store.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) CreateRegistry(ctx context.Context, registry *models.Registry) error {
	query := `
		INSERT INTO registries (id, domain, name, slug, description, is_active, schema, created_on, modified_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(registry.ID),
		registry.Domain,
		registry.Name,
		registry.Slug,
		registry.Description,
		registry.IsActive,
		nullJSON(registry.Schema),
		registry.CreatedOn,
		registry.ModifiedOn,
	)
	if err != nil {
		return mapError("insert registry", err)
	}
	return nil
}

const registryColumns = `id, domain, name, slug, description, is_active, schema, created_on, modified_on`

func (s *Store) GetRegistry(ctx context.Context, registryID id.RegistryID) (*models.Registry, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+registryColumns+` FROM registries WHERE id = $1`, uuid.UUID(registryID))
	return scanRegistry(row)
}

func (s *Store) UpdateRegistry(ctx context.Context, registry *models.Registry) error {
	query := `
		UPDATE registries
		SET name = $2, description = $3, is_active = $4, schema = $5, modified_on = $6
		WHERE id = $1
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(registry.ID),
		registry.Name,
		registry.Description,
		registry.IsActive,
		nullJSON(registry.Schema),
		registry.ModifiedOn,
	)
	if err != nil {
		return mapError("update registry", err)
	}
	return requireRowAffected(result)
}

func (s *Store) DeleteRegistry(ctx context.Context, registryID id.RegistryID) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM registries WHERE id = $1`, uuid.UUID(registryID))
	if err != nil {
		return mapError("delete registry", err)
	}
	return requireRowAffected(result)
}

func (s *Store) ListOwnedBy(ctx context.Context, domain id.Domain, filter store.RegistryFilter) ([]*models.Registry, error) {
	query := `SELECT ` + registryColumns + ` FROM registries WHERE domain = $1`
	args := []any{domain}
	if filter.ActiveOnly != nil {
		query += ` AND is_active = $2`
		args = append(args, *filter.ActiveOnly)
	}
	query += ` ORDER BY created_on, slug`
	return s.queryRegistries(ctx, query, args...)
}

func (s *Store) ListAccessibleTo(ctx context.Context, domain id.Domain, filter store.RegistryFilter) ([]*models.Registry, error) {
	query := `
		SELECT ` + registryColumns + ` FROM registries r
		WHERE r.is_active
		  AND EXISTS (
			SELECT 1 FROM registry_invitations i
			WHERE i.registry_id = r.id AND i.domain = $1 AND i.status = 'accepted'
		  )
	`
	args := []any{domain}
	if filter.Slug != "" {
		args = append(args, filter.Slug)
		query += fmt.Sprintf(` AND r.slug = $%d`, len(args))
	}
	if filter.RequireGrants {
		query += ` AND EXISTS (
			SELECT 1 FROM registry_grants g
			WHERE g.registry_id = r.id AND g.to_domains @> ARRAY[$1::varchar]
		)`
	}
	query += ` ORDER BY r.created_on, r.slug`
	return s.queryRegistries(ctx, query, args...)
}

func (s *Store) CreateInvitation(ctx context.Context, invitation *models.Invitation) error {
	query := `
		INSERT INTO registry_invitations (id, registry_id, domain, status, created_on, modified_on)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(invitation.ID),
		uuid.UUID(invitation.RegistryID),
		invitation.Domain,
		invitation.Status,
		invitation.CreatedOn,
		invitation.ModifiedOn,
	)
	if err != nil {
		return mapError("insert invitation", err)
	}
	return nil
}

const invitationColumns = `id, registry_id, domain, status, created_on, modified_on`

func (s *Store) GetInvitation(ctx context.Context, invitationID id.InvitationID) (*models.Invitation, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM registry_invitations WHERE id = $1`, uuid.UUID(invitationID))
	return scanInvitation(row)
}

func (s *Store) FindInvitation(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM registry_invitations
		WHERE registry_id = $1 AND domain = $2
		ORDER BY created_on, id
		LIMIT 1
	`, uuid.UUID(registryID), domain)
	return scanInvitation(row)
}

func (s *Store) UpdateInvitation(ctx context.Context, invitation *models.Invitation) error {
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE registry_invitations SET status = $2, modified_on = $3 WHERE id = $1
	`, uuid.UUID(invitation.ID), invitation.Status, invitation.ModifiedOn)
	if err != nil {
		return mapError("update invitation", err)
	}
	return requireRowAffected(result)
}

func (s *Store) DeleteInvitation(ctx context.Context, invitationID id.InvitationID) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM registry_invitations WHERE id = $1`, uuid.UUID(invitationID))
	if err != nil {
		return mapError("delete invitation", err)
	}
	return requireRowAffected(result)
}

func (s *Store) ListInvitations(ctx context.Context, registryID id.RegistryID) ([]*models.Invitation, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+invitationColumns+` FROM registry_invitations
		WHERE registry_id = $1
		ORDER BY created_on, id
	`, uuid.UUID(registryID))
	if err != nil {
		return nil, mapError("list invitations", err)
	}
	defer rows.Close()

	var invitations []*models.Invitation
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, invitation)
	}
	return invitations, rows.Err()
}

func (s *Store) CreateGrant(ctx context.Context, grant *models.Grant) error {
	query := `
		INSERT INTO registry_grants (id, registry_id, from_domain, to_domains, created_on)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(grant.ID),
		uuid.UUID(grant.RegistryID),
		grant.FromDomain,
		pq.Array(grant.ToDomains),
		grant.CreatedOn,
	)
	if err != nil {
		return mapError("insert grant", err)
	}
	return nil
}

const grantColumns = `id, registry_id, from_domain, to_domains, created_on`

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*models.Grant, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM registry_grants WHERE id = $1`, uuid.UUID(grantID))
	return scanGrant(row)
}

func (s *Store) DeleteGrant(ctx context.Context, grantID id.GrantID) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM registry_grants WHERE id = $1`, uuid.UUID(grantID))
	if err != nil {
		return mapError("delete grant", err)
	}
	return requireRowAffected(result)
}

func (s *Store) ListGrants(ctx context.Context, registryID id.RegistryID) ([]*models.Grant, error) {
	return s.queryGrants(ctx, `
		SELECT `+grantColumns+` FROM registry_grants
		WHERE registry_id = $1
		ORDER BY created_on, id
	`, uuid.UUID(registryID))
}

func (s *Store) ListGrantsTo(ctx context.Context, registryID id.RegistryID, domain id.Domain) ([]*models.Grant, error) {
	return s.queryGrants(ctx, `
		SELECT `+grantColumns+` FROM registry_grants
		WHERE registry_id = $1 AND to_domains @> ARRAY[$2::varchar]
		ORDER BY created_on, id
	`, uuid.UUID(registryID), domain)
}

func (s *Store) UpsertPermission(ctx context.Context, permission *models.Permission) error {
	query := `
		INSERT INTO registry_permissions (registry_id, domain, read_only_group_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (registry_id, domain) DO UPDATE SET read_only_group_id = EXCLUDED.read_only_group_id
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(permission.RegistryID), permission.Domain, nullString(permission.ReadOnlyGroupID))
	if err != nil {
		return mapError("upsert permission", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Permission, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT registry_id, domain, read_only_group_id FROM registry_permissions
		WHERE registry_id = $1 AND domain = $2
	`, uuid.UUID(registryID), domain)

	var permission models.Permission
	var registryUUID uuid.UUID
	var groupID sql.NullString
	if err := row.Scan(&registryUUID, &permission.Domain, &groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}
	permission.RegistryID = id.RegistryID(registryUUID)
	permission.ReadOnlyGroupID = groupID.String
	return &permission, nil
}

func (s *Store) AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO registry_audit_log (registry_id, date, action, domain, user_id, related_object_id, related_object_type, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	row := s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(entry.RegistryID),
		entry.Date,
		entry.Action,
		entry.Domain,
		uuid.UUID(entry.User),
		entry.RelatedObjectID,
		entry.RelatedObjectType,
		nullJSON(entry.Detail),
	)
	if err := row.Scan(&entry.ID); err != nil {
		return mapError("insert audit entry", err)
	}
	return nil
}

func (s *Store) ListAuditEntries(ctx context.Context, registryID id.RegistryID) ([]*models.AuditEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, registry_id, date, action, domain, user_id, related_object_id, related_object_type, detail
		FROM registry_audit_log
		WHERE registry_id = $1
		ORDER BY id DESC
	`, uuid.UUID(registryID))
	if err != nil {
		return nil, mapError("list audit entries", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var registryUUID, userUUID uuid.UUID
		var detail []byte
		if err := rows.Scan(&entry.ID, &registryUUID, &entry.Date, &entry.Action, &entry.Domain,
			&userUUID, &entry.RelatedObjectID, &entry.RelatedObjectType, &detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.RegistryID = id.RegistryID(registryUUID)
		entry.User = id.UserID(userUUID)
		entry.Detail = json.RawMessage(detail)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (s *Store) queryRegistries(ctx context.Context, query string, args ...any) ([]*models.Registry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list registries", err)
	}
	defer rows.Close()

	var registries []*models.Registry
	for rows.Next() {
		registry, err := scanRegistry(rows)
		if err != nil {
			return nil, err
		}
		registries = append(registries, registry)
	}
	return registries, rows.Err()
}

func (s *Store) queryGrants(ctx context.Context, query string, args ...any) ([]*models.Grant, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list grants", err)
	}
	defer rows.Close()

	var grants []*models.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistry(row rowScanner) (*models.Registry, error) {
	var registry models.Registry
	var registryUUID uuid.UUID
	var schema []byte
	err := row.Scan(&registryUUID, &registry.Domain, &registry.Name, &registry.Slug,
		&registry.Description, &registry.IsActive, &schema, &registry.CreatedOn, &registry.ModifiedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan registry: %w", err)
	}
	registry.ID = id.RegistryID(registryUUID)
	registry.Schema = json.RawMessage(schema)
	return &registry, nil
}

func scanInvitation(row rowScanner) (*models.Invitation, error) {
	var invitation models.Invitation
	var invitationUUID, registryUUID uuid.UUID
	err := row.Scan(&invitationUUID, &registryUUID, &invitation.Domain,
		&invitation.Status, &invitation.CreatedOn, &invitation.ModifiedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan invitation: %w", err)
	}
	invitation.ID = id.InvitationID(invitationUUID)
	invitation.RegistryID = id.RegistryID(registryUUID)
	return &invitation, nil
}

func scanGrant(row rowScanner) (*models.Grant, error) {
	var grant models.Grant
	var grantUUID, registryUUID uuid.UUID
	var toDomains pq.StringArray
	err := row.Scan(&grantUUID, &registryUUID, &grant.FromDomain, &toDomains, &grant.CreatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan grant: %w", err)
	}
	grant.ID = id.GrantID(grantUUID)
	grant.RegistryID = id.RegistryID(registryUUID)
	grant.ToDomains = []id.Domain(toDomains)
	return &grant, nil
}

func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return sentinel.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
