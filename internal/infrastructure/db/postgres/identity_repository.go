package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/clipsocial/social-api/internal/core/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS identities (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS identities_email_key ON identities (LOWER(email));
`

const selectIdentity = `SELECT id, email, password_hash, created_at, updated_at FROM identities`

// IdentityRepository implements ports.IdentityRepository using PostgreSQL.
// Email uniqueness is case-insensitive via a unique index on LOWER(email).
type IdentityRepository struct {
	pool pool
}

func NewIdentityRepository(p pool) *IdentityRepository {
	return &IdentityRepository{pool: p}
}

// EnsureSchema creates the identities table and its unique email index when
// they are missing.
func (r *IdentityRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return oops.Code("SCHEMA_FAILED").With("table", "identities").Wrap(err)
	}
	return nil
}

func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO identities (id, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID,
		identity.Email,
		identity.PasswordHash,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.ErrDuplicateEmail
		}
		return oops.Code("INSERT_FAILED").With("identity_id", identity.ID).Wrap(err)
	}
	return nil
}

func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	row := r.pool.QueryRow(ctx, selectIdentity+` WHERE LOWER(email) = LOWER($1)`, email)
	return scanIdentity(row, "find by email")
}

func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	row := r.pool.QueryRow(ctx, selectIdentity+` WHERE id = $1`, id)
	return scanIdentity(row, "find by id")
}

func (r *IdentityRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE identities SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return oops.Code("UPDATE_FAILED").With("identity_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row, operation string) (*domain.Identity, error) {
	var identity domain.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, oops.Code("QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	return &identity, nil
}
