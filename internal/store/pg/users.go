package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dashgate.org/internal/account"
	"dashgate.org/internal/directory"
	"dashgate.org/internal/ids"
)

const userColumns = `id, company_id, name, email, role, failed_login_attempts, is_locked, last_login, created_at, updated_at`

// CreateUser inserts the user, its credential hash and its membership rows in
// one transaction. Elevated roles receive every department of the company;
// plain users receive the requested departments restricted to the company.
func (s *Store) CreateUser(ctx context.Context, u *directory.User, passwordHash string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	id := ids.New()
	if err := tx.QueryRowContext(ctx, `
		insert into users (id, company_id, name, email, role, password_hash)
		values ($1, $2, $3, $4, $5, $6)
		returning `+userColumns+`
	`, id, nullIfEmpty(u.CompanyID), u.Name, u.Email, string(u.Role), passwordHash).
		Scan(userDest(u)...); err != nil {
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

	requested := u.DepartmentIDs
	u.DepartmentIDs = nil
	if err := rebuildMemberships(ctx, tx, u.ID, u.Role, u.CompanyID, requested); err != nil {
		return err
	}
	members, err := membershipsTx(ctx, tx, u.ID)
	if err != nil {
		return err
	}
	u.DepartmentIDs = members
	return tx.Commit()
}

func (s *Store) ListUsers(ctx context.Context) ([]directory.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		order by email
	`)
	if err != nil {
		return nil, err
	}
	users, err := scanUsers(rows)
	if err != nil {
		return nil, err
	}
	return s.attachMemberships(ctx, users)
}

func (s *Store) ListUsersByCompany(ctx context.Context, companyID string) ([]directory.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where company_id = $1
		order by email
	`, companyID)
	if err != nil {
		return nil, err
	}
	users, err := scanUsers(rows)
	if err != nil {
		return nil, err
	}
	return s.attachMemberships(ctx, users)
}

func (s *Store) GetUser(ctx context.Context, id string) (directory.User, error) {
	if s.db == nil {
		return directory.User{}, errors.New("database connection unavailable")
	}
	var u directory.User
	err := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id).Scan(userDest(&u)...)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select department_id from user_departments
		where user_id = $1
		order by department_id
	`, id)
	if err != nil {
		return directory.User{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var deptID string
		if err := rows.Scan(&deptID); err != nil {
			return directory.User{}, err
		}
		u.DepartmentIDs = append(u.DepartmentIDs, deptID)
	}
	if err := rows.Err(); err != nil {
		return directory.User{}, err
	}
	return u, nil
}

// UpdateUser applies field changes and, whenever role, company or the
// requested department set changes, rebuilds the membership rows from the
// final role in the same transaction.
func (s *Store) UpdateUser(ctx context.Context, id string, upd directory.UserUpdate) (directory.User, error) {
	if s.db == nil {
		return directory.User{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return directory.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		role    string
		company sql.NullString
	)
	if err := tx.QueryRowContext(ctx, `
		select role, company_id from users where id = $1 for update
	`, id).Scan(&role, &company); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return directory.User{}, directory.ErrNotFound
		}
		return directory.User{}, err
	}
	finalRole := directory.Role(role)
	finalCompany := company.String

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
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Role != nil {
		sets = append(sets, fmt.Sprintf("role = $%d", idx))
		args = append(args, string(*upd.Role))
		idx++
		finalRole = *upd.Role
	}
	if upd.CompanyID != nil {
		sets = append(sets, fmt.Sprintf("company_id = $%d", idx))
		args = append(args, nullIfEmpty(*upd.CompanyID))
		idx++
		finalCompany = *upd.CompanyID
	}
	if upd.PasswordHash != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.PasswordHash)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrUniqueViolation:
					return directory.User{}, directory.ErrConflict
				case pgErrForeignKeyViolation:
					return directory.User{}, directory.ErrNotFound
				}
			}
			return directory.User{}, err
		}
	}

	if upd.Role != nil || upd.CompanyID != nil || upd.DepartmentIDs != nil {
		if _, err := tx.ExecContext(ctx, `
			delete from user_departments where user_id = $1
		`, id); err != nil {
			return directory.User{}, err
		}
		if err := rebuildMemberships(ctx, tx, id, finalRole, finalCompany, upd.DepartmentIDs); err != nil {
			return directory.User{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return directory.User{}, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
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

// SetPassword replaces the hash, clears the lock and zeroes the counter.
func (s *Store) SetPassword(ctx context.Context, userID, passwordHash string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2, is_locked = false, failed_login_attempts = 0, updated_at = now()
		where id = $1
	`, userID, passwordHash)
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

// --- credentials ---

func (s *Store) CredentialByEmail(ctx context.Context, email string) (account.Credential, error) {
	if s.db == nil {
		return account.Credential{}, errors.New("database connection unavailable")
	}
	var cred account.Credential
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, failed_login_attempts, is_locked
		from users
		where email = $1
	`, email).Scan(&cred.UserID, &cred.Email, &cred.PasswordHash, &cred.FailedAttempts, &cred.Locked)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Credential{}, directory.ErrNotFound
	}
	if err != nil {
		return account.Credential{}, err
	}
	return cred, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set failed_login_attempts = 0, last_login = $2
		where id = $1
	`, userID, at)
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

func (s *Store) RecordLoginFailure(ctx context.Context, userID string, threshold int) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var (
		locked   bool
		attempts int
	)
	err := s.db.QueryRowContext(ctx, `
		update users
		set failed_login_attempts = failed_login_attempts + 1,
		    is_locked = is_locked or failed_login_attempts + 1 >= $2
		where id = $1
		returning is_locked, failed_login_attempts
	`, userID, threshold).Scan(&locked, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return false, directory.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	// The lock fires exactly once, at the transition attempt.
	return locked && attempts == threshold, nil
}

// --- helpers ---

func rebuildMemberships(ctx context.Context, tx *sql.Tx, userID string, role directory.Role, companyID string, requested []string) error {
	if companyID == "" {
		return nil
	}
	if role.Elevated() {
		_, err := tx.ExecContext(ctx, `
			insert into user_departments (user_id, department_id)
			select $1, d.id
			from departments d
			where d.company_id = $2
			on conflict do nothing
		`, userID, companyID)
		return err
	}
	for _, deptID := range requested {
		// Departments outside the company are skipped silently.
		if _, err := tx.ExecContext(ctx, `
			insert into user_departments (user_id, department_id)
			select $1, d.id
			from departments d
			where d.id = $2 and d.company_id = $3
			on conflict do nothing
		`, userID, deptID, companyID); err != nil {
			return err
		}
	}
	return nil
}

func membershipsTx(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		select department_id from user_departments
		where user_id = $1
		order by department_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var deptID string
		if err := rows.Scan(&deptID); err != nil {
			return nil, err
		}
		out = append(out, deptID)
	}
	return out, rows.Err()
}

func (s *Store) attachMemberships(ctx context.Context, users []directory.User) ([]directory.User, error) {
	if len(users) == 0 {
		return users, nil
	}
	idList := make([]string, 0, len(users))
	for _, u := range users {
		idList = append(idList, u.ID)
	}
	rows, err := s.db.QueryContext(ctx, `
		select user_id, department_id from user_departments
		where user_id = any($1)
		order by user_id, department_id
	`, idList)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byUser := make(map[string][]string)
	for rows.Next() {
		var userID, deptID string
		if err := rows.Scan(&userID, &deptID); err != nil {
			return nil, err
		}
		byUser[userID] = append(byUser[userID], deptID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range users {
		users[i].DepartmentIDs = byUser[users[i].ID]
	}
	return users, nil
}

func scanUsers(rows *sql.Rows) ([]directory.User, error) {
	defer rows.Close()
	var result []directory.User
	for rows.Next() {
		var u directory.User
		if err := rows.Scan(userDest(&u)...); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// userDest builds scan destinations for userColumns, mapping the nullable
// company and last_login columns through intermediaries.
func userDest(u *directory.User) []any {
	return []any{
		&u.ID,
		&nullStringInto{&u.CompanyID},
		&u.Name,
		&u.Email,
		(*roleScanner)(&u.Role),
		&u.FailedLoginAttempts,
		&u.Locked,
		&nullTimeInto{&u.LastLogin},
		&u.CreatedAt,
		&u.UpdatedAt,
	}
}

type nullStringInto struct{ dst *string }

func (n *nullStringInto) Scan(v any) error {
	var ns sql.NullString
	if err := ns.Scan(v); err != nil {
		return err
	}
	*n.dst = ns.String
	return nil
}

type nullTimeInto struct{ dst **time.Time }

func (n *nullTimeInto) Scan(v any) error {
	var nt sql.NullTime
	if err := nt.Scan(v); err != nil {
		return err
	}
	if nt.Valid {
		t := nt.Time
		*n.dst = &t
	} else {
		*n.dst = nil
	}
	return nil
}

type roleScanner directory.Role

func (r *roleScanner) Scan(v any) error {
	switch t := v.(type) {
	case string:
		*r = roleScanner(t)
	case []byte:
		*r = roleScanner(t)
	default:
		return fmt.Errorf("unexpected role type %T", v)
	}
	return nil
}
