package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pulseward/pulseward/internal/validate"
)

// Organization is the tenant root. Every monitor, dispatch, and ticker
// state row is scoped beneath one.
type Organization struct {
	ID            string
	Slug          string
	Name          string
	OwnerID       string
	CreatedAt     int64
	AESampleRate  float64
}

// ErrNotFound is returned by single-row lookups that match no row.
var ErrNotFound = errors.New("store: not found")

func (s *Store) GetOrganization(ctx context.Context, id string) (Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, owner_id, created_at, ae_sample_rate
		 FROM organizations WHERE id = ?`, id)
	return scanOrganization(row)
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, owner_id, created_at, ae_sample_rate
		 FROM organizations WHERE slug = ?`, slug)
	return scanOrganization(row)
}

func (s *Store) CreateOrganization(ctx context.Context, slug, name, ownerID string) (Organization, error) {
	if !validate.OrgSlug(slug) {
		return Organization{}, fmt.Errorf("store: invalid organization slug %q", slug)
	}
	id := newID("org")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, slug, name, owner_id, created_at, ae_sample_rate)
		 VALUES (?, ?, ?, ?, unixepoch(), 1.0)`,
		id, slug, name, ownerID)
	if err != nil {
		return Organization{}, err
	}
	return s.GetOrganization(ctx, id)
}

// SetAnalyticsSampleRate updates the Bernoulli sample gate rate used when
// writing heartbeats for every monitor in this org. Clamped to [0, 1].
func (s *Store) SetAnalyticsSampleRate(ctx context.Context, orgID string, rate float64) error {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE organizations SET ae_sample_rate = ? WHERE id = ?", rate, orgID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrganization(row interface{ Scan(dest ...any) error }) (Organization, error) {
	var o Organization
	if err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.OwnerID, &o.CreatedAt, &o.AESampleRate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	return o, nil
}
