package store

import (
	"context"
	"fmt"
)

// Fixture is one patched fixture: definition reference, active mode, and
// placement in the venue. Position in meters, rotation in radians.
type Fixture struct {
	ID          string
	Name        string
	FixturePath string
	ModeName    string
	PosX, PosY, PosZ float64
	RotX, RotY, RotZ float64
}

// HeadOffset is the local offset of one head within a fixture mode,
// in millimeters.
type HeadOffset struct {
	HeadIndex int
	X, Y, Z   float64
}

// AllFixtures returns the full patch in stable id order.
func (s *Store) AllFixtures(ctx context.Context) ([]Fixture, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, fixture_path, mode_name,
		       pos_x, pos_y, pos_z, rot_x, rot_y, rot_z
		FROM fixtures ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetch fixtures: %w", err)
	}
	defer rows.Close()

	var fixtures []Fixture
	for rows.Next() {
		var f Fixture
		if err := rows.Scan(&f.ID, &f.Name, &f.FixturePath, &f.ModeName,
			&f.PosX, &f.PosY, &f.PosZ, &f.RotX, &f.RotY, &f.RotZ); err != nil {
			return nil, fmt.Errorf("scan fixture row: %w", err)
		}
		fixtures = append(fixtures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fixtures: %w", err)
	}
	return fixtures, nil
}

// FixtureHeads returns head offsets for a fixture's mode, ordered by
// head index. Fixtures without stored heads get a single head at the
// origin from the caller.
func (s *Store) FixtureHeads(ctx context.Context, fixtureID, modeName string) ([]HeadOffset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT head_index, offset_x_mm, offset_y_mm, offset_z_mm
		FROM fixture_heads
		WHERE fixture_id = ? AND mode_name = ?
		ORDER BY head_index`, fixtureID, modeName)
	if err != nil {
		return nil, fmt.Errorf("fetch heads for fixture %s: %w", fixtureID, err)
	}
	defer rows.Close()

	var heads []HeadOffset
	for rows.Next() {
		var h HeadOffset
		if err := rows.Scan(&h.HeadIndex, &h.X, &h.Y, &h.Z); err != nil {
			return nil, fmt.Errorf("scan head row: %w", err)
		}
		heads = append(heads, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate heads: %w", err)
	}
	return heads, nil
}

// FixtureTags returns the tags for a fixture.
func (s *Store) FixtureTags(ctx context.Context, fixtureID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag FROM fixture_tags WHERE fixture_id = ? ORDER BY tag`, fixtureID)
	if err != nil {
		return nil, fmt.Errorf("fetch tags for fixture %s: %w", fixtureID, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// PutFixture inserts or replaces a patched fixture.
func (s *Store) PutFixture(ctx context.Context, f Fixture) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fixtures (id, name, fixture_path, mode_name,
			pos_x, pos_y, pos_z, rot_x, rot_y, rot_z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			fixture_path = excluded.fixture_path,
			mode_name = excluded.mode_name,
			pos_x = excluded.pos_x, pos_y = excluded.pos_y, pos_z = excluded.pos_z,
			rot_x = excluded.rot_x, rot_y = excluded.rot_y, rot_z = excluded.rot_z`,
		f.ID, f.Name, f.FixturePath, f.ModeName,
		f.PosX, f.PosY, f.PosZ, f.RotX, f.RotY, f.RotZ)
	if err != nil {
		return fmt.Errorf("store fixture %s: %w", f.ID, err)
	}
	return nil
}

// PutFixtureHeads replaces the stored head layout for a fixture mode.
func (s *Store) PutFixtureHeads(ctx context.Context, fixtureID, modeName string, heads []HeadOffset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin heads tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fixture_heads WHERE fixture_id = ? AND mode_name = ?`,
		fixtureID, modeName); err != nil {
		return fmt.Errorf("clear heads for fixture %s: %w", fixtureID, err)
	}
	for _, h := range heads {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fixture_heads (fixture_id, mode_name, head_index,
				offset_x_mm, offset_y_mm, offset_z_mm)
			VALUES (?, ?, ?, ?, ?, ?)`,
			fixtureID, modeName, h.HeadIndex, h.X, h.Y, h.Z); err != nil {
			return fmt.Errorf("store head %d for fixture %s: %w", h.HeadIndex, fixtureID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit heads tx: %w", err)
	}
	return nil
}

// TagFixture adds a tag to a fixture. Adding an existing tag is a no-op.
func (s *Store) TagFixture(ctx context.Context, fixtureID, tag string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fixture_tags (fixture_id, tag) VALUES (?, ?)
		ON CONFLICT(fixture_id, tag) DO NOTHING`, fixtureID, tag)
	if err != nil {
		return fmt.Errorf("tag fixture %s: %w", fixtureID, err)
	}
	return nil
}
