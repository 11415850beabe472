package pg

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"unilink.org/internal/auth"
)

// Role mapping rows carry a match_kind discriminator: 'name', 'programme',
// 'year', 'title' or 'tag'. Tag rows may be regular expressions, matched with
// the Postgres ~ operator so exact and pattern rows share one query.

func (s *Store) RoleByName(ctx context.Context, name string) (auth.RoleMapping, error) {
	var m auth.RoleMapping
	err := s.db.QueryRowContext(ctx, `
		select id, name, kind, role_id
		from role_mappings
		where match_kind = 'name' and name = $1
		order by id
		limit 1
	`, name).Scan(&m.ID, &m.Name, &m.Kind, &m.RoleID)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RoleMapping{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.RoleMapping{}, err
	}
	return m, nil
}

func (s *Store) RolesByProgramme(ctx context.Context, programmeTitle string) ([]auth.RoleMapping, error) {
	return s.mappingsByMatch(ctx, "programme", programmeTitle)
}

func (s *Store) RolesByYear(ctx context.Context, year int) ([]auth.RoleMapping, error) {
	return s.mappingsByMatch(ctx, "year", strconv.Itoa(year))
}

func (s *Store) RolesByTitle(ctx context.Context, title string) ([]auth.RoleMapping, error) {
	return s.mappingsByMatch(ctx, "title", title)
}

func (s *Store) RolesByTag(ctx context.Context, tag string) ([]auth.RoleMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, kind, role_id
		from role_mappings
		where match_kind = 'tag'
		  and ((not is_regex and match_value = $1) or (is_regex and $1 ~ match_value))
		order by id
	`, tag)
	if err != nil {
		return nil, err
	}
	return collectMappings(rows)
}

func (s *Store) GrantableRoleIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct role_id from role_mappings order by role_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) mappingsByMatch(ctx context.Context, matchKind, matchValue string) ([]auth.RoleMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, kind, role_id
		from role_mappings
		where match_kind = $1 and match_value = $2
		order by id
	`, matchKind, matchValue)
	if err != nil {
		return nil, err
	}
	return collectMappings(rows)
}

func collectMappings(rows *sql.Rows) ([]auth.RoleMapping, error) {
	defer rows.Close()

	var mappings []auth.RoleMapping
	for rows.Next() {
		var m auth.RoleMapping
		if err := rows.Scan(&m.ID, &m.Name, &m.Kind, &m.RoleID); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return mappings, nil
}
