package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dashgate.org/internal/directory"
	"dashgate.org/internal/ids"
)

// --- companies ---

func (s *Store) CreateCompany(ctx context.Context, c *directory.Company) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	var desc sql.NullString
	row := s.db.QueryRowContext(ctx, `
		insert into companies (id, name, description, is_active)
		values ($1, $2, $3, $4)
		returning id, name, description, is_active, created_at, updated_at
	`, ids.New(), c.Name, nullIfEmpty(c.Description), c.Active)
	if err := row.Scan(&c.ID, &c.Name, &desc, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return directory.ErrConflict
		}
		return err
	}
	c.Description = desc.String
	return nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]directory.Company, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, is_active, created_at, updated_at
		from companies
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Company
	for rows.Next() {
		var (
			c    directory.Company
			desc sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &desc, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Description = desc.String
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (directory.Company, error) {
	if s.db == nil {
		return directory.Company{}, errors.New("database connection unavailable")
	}
	var (
		c    directory.Company
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, is_active, created_at, updated_at
		from companies
		where id = $1
	`, id).Scan(&c.ID, &c.Name, &desc, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Company{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Company{}, err
	}
	c.Description = desc.String
	return c, nil
}

func (s *Store) UpdateCompany(ctx context.Context, id string, upd directory.CompanyUpdate) (directory.Company, error) {
	if s.db == nil {
		return directory.Company{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if upd.Active != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *upd.Active)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update companies set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return directory.Company{}, directory.ErrConflict
			}
			return directory.Company{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return directory.Company{}, err
		}
		if aff == 0 {
			return directory.Company{}, directory.ErrNotFound
		}
	}
	return s.GetCompany(ctx, id)
}

// DeleteCompany relies on the schema: departments and dashboards cascade,
// users restrict. A restrict violation surfaces as ErrConflict.
func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from companies where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return directory.ErrConflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// --- departments ---

func (s *Store) CreateDepartment(ctx context.Context, d *directory.Department) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var desc sql.NullString
	row := tx.QueryRowContext(ctx, `
		insert into departments (id, company_id, name, description, is_active)
		values ($1, $2, $3, $4, $5)
		returning id, company_id, name, description, is_active, created_at, updated_at
	`, ids.New(), d.CompanyID, d.Name, nullIfEmpty(d.Description), d.Active)
	if err := row.Scan(&d.ID, &d.CompanyID, &d.Name, &desc, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return directory.ErrConflict
			case pgErrForeignKeyViolation:
				return directory.ErrNotFound
			}
		}
		return err
	}
	d.Description = desc.String

	// Elevated users of the owning company see the new department immediately.
	if _, err := tx.ExecContext(ctx, `
		insert into user_departments (user_id, department_id)
		select u.id, $1
		from users u
		where u.company_id = $2 and u.role in ('master', 'admin')
		on conflict do nothing
	`, d.ID, d.CompanyID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListDepartments(ctx context.Context) ([]directory.Department, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, company_id, name, description, is_active, created_at, updated_at
		from departments
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDepartments(rows)
}

func (s *Store) ListDepartmentsByCompany(ctx context.Context, companyID string, activeOnly bool) ([]directory.Department, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, company_id, name, description, is_active, created_at, updated_at
		from departments
		where company_id = $1 and (not $2 or is_active)
		order by name
	`, companyID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDepartments(rows)
}

func (s *Store) ListDepartmentsByIDs(ctx context.Context, idList []string) ([]directory.Department, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if len(idList) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, company_id, name, description, is_active, created_at, updated_at
		from departments
		where id = any($1)
		order by name
	`, idList)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDepartments(rows)
}

func (s *Store) GetDepartment(ctx context.Context, id string) (directory.Department, error) {
	if s.db == nil {
		return directory.Department{}, errors.New("database connection unavailable")
	}
	var (
		d    directory.Department
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, company_id, name, description, is_active, created_at, updated_at
		from departments
		where id = $1
	`, id).Scan(&d.ID, &d.CompanyID, &d.Name, &desc, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Department{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Department{}, err
	}
	d.Description = desc.String
	return d, nil
}

// UpdateDepartment repairs memberships in the same transaction when the
// department moves between companies: every old holder loses the grant, every
// elevated user of the new company gains it.
func (s *Store) UpdateDepartment(ctx context.Context, id string, upd directory.DepartmentUpdate) (directory.Department, error) {
	if s.db == nil {
		return directory.Department{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return directory.Department{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var currentCompany string
	if err := tx.QueryRowContext(ctx, `
		select company_id from departments where id = $1 for update
	`, id).Scan(&currentCompany); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return directory.Department{}, directory.ErrNotFound
		}
		return directory.Department{}, err
	}

	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if upd.Active != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *upd.Active)
		idx++
	}
	moving := upd.CompanyID != nil && *upd.CompanyID != currentCompany
	if moving {
		sets = append(sets, fmt.Sprintf("company_id = $%d", idx))
		args = append(args, *upd.CompanyID)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update departments set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrUniqueViolation:
					return directory.Department{}, directory.ErrConflict
				case pgErrForeignKeyViolation:
					return directory.Department{}, directory.ErrNotFound
				}
			}
			return directory.Department{}, err
		}
	}
	if moving {
		// Only users of the old company can hold the grant, so dropping every
		// row for this department revokes exactly the old-company set.
		if _, err := tx.ExecContext(ctx, `
			delete from user_departments where department_id = $1
		`, id); err != nil {
			return directory.Department{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into user_departments (user_id, department_id)
			select u.id, $1
			from users u
			where u.company_id = $2 and u.role in ('master', 'admin')
			on conflict do nothing
		`, id, *upd.CompanyID); err != nil {
			return directory.Department{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return directory.Department{}, err
	}
	return s.GetDepartment(ctx, id)
}

func (s *Store) DeleteDepartment(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from departments where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func scanDepartments(rows *sql.Rows) ([]directory.Department, error) {
	var result []directory.Department
	for rows.Next() {
		var (
			d    directory.Department
			desc sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.Name, &desc, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Description = desc.String
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// --- dashboards ---

func (s *Store) CreateDashboard(ctx context.Context, d *directory.Dashboard) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	var desc sql.NullString
	row := s.db.QueryRowContext(ctx, `
		insert into dashboards (id, department_id, name, description, embed_link, is_active)
		values ($1, $2, $3, $4, $5, $6)
		returning id, department_id, name, description, embed_link, is_active, created_at, updated_at
	`, ids.New(), d.DepartmentID, d.Name, nullIfEmpty(d.Description), d.EmbedLink, d.Active)
	if err := row.Scan(&d.ID, &d.DepartmentID, &d.Name, &desc, &d.EmbedLink, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return directory.ErrConflict
			case pgErrForeignKeyViolation:
				return directory.ErrNotFound
			}
		}
		return err
	}
	d.Description = desc.String
	return nil
}

func (s *Store) ListDashboards(ctx context.Context) ([]directory.Dashboard, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, department_id, name, description, embed_link, is_active, created_at, updated_at
		from dashboards
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDashboards(rows)
}

func (s *Store) ListDashboardsByDepartments(ctx context.Context, departmentIDs []string, activeOnly bool) ([]directory.Dashboard, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if len(departmentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, department_id, name, description, embed_link, is_active, created_at, updated_at
		from dashboards
		where department_id = any($1) and (not $2 or is_active)
		order by name
	`, departmentIDs, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDashboards(rows)
}

func (s *Store) GetDashboard(ctx context.Context, id string) (directory.Dashboard, error) {
	if s.db == nil {
		return directory.Dashboard{}, errors.New("database connection unavailable")
	}
	var (
		d    directory.Dashboard
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, department_id, name, description, embed_link, is_active, created_at, updated_at
		from dashboards
		where id = $1
	`, id).Scan(&d.ID, &d.DepartmentID, &d.Name, &desc, &d.EmbedLink, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Dashboard{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Dashboard{}, err
	}
	d.Description = desc.String
	return d, nil
}

func (s *Store) UpdateDashboard(ctx context.Context, id string, upd directory.DashboardUpdate) (directory.Dashboard, error) {
	if s.db == nil {
		return directory.Dashboard{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if upd.EmbedLink != nil {
		sets = append(sets, fmt.Sprintf("embed_link = $%d", idx))
		args = append(args, *upd.EmbedLink)
		idx++
	}
	if upd.Active != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *upd.Active)
		idx++
	}
	if upd.DepartmentID != nil {
		sets = append(sets, fmt.Sprintf("department_id = $%d", idx))
		args = append(args, *upd.DepartmentID)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update dashboards set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrUniqueViolation:
					return directory.Dashboard{}, directory.ErrConflict
				case pgErrForeignKeyViolation:
					return directory.Dashboard{}, directory.ErrNotFound
				}
			}
			return directory.Dashboard{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return directory.Dashboard{}, err
		}
		if aff == 0 {
			return directory.Dashboard{}, directory.ErrNotFound
		}
	}
	return s.GetDashboard(ctx, id)
}

func (s *Store) DeleteDashboard(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from dashboards where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func scanDashboards(rows *sql.Rows) ([]directory.Dashboard, error) {
	var result []directory.Dashboard
	for rows.Next() {
		var (
			d    directory.Dashboard
			desc sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.DepartmentID, &d.Name, &desc, &d.EmbedLink, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Description = desc.String
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
