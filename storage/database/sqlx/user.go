package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/user"
)

// userColumns is both the SELECT list and the INSERT column list; it must
// stay in sync with userRow.fields().
const userColumns = `id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     null.Bool      `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    null.Time      `db:"created_at"`
	UpdatedAt    null.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (r *userRow) fields() []interface{} {
	return []interface{}{
		&r.ID, &r.Name, &r.Username, &r.Email, &r.IsActive, &r.Roles,
		&r.PasswordHash, &r.CreatedAt, &r.UpdatedAt, &r.LastLogin,
	}
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) row(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     null.BoolFromPtr(usr.IsActive),
		Roles:        usr.Roles,
		PasswordHash: null.BytesFrom(usr.PasswordHash),
		CreatedAt:    null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unrow(r userRow) user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive.Ptr(),
		Roles:        r.Roles,
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		LastLogin:    r.LastLogin.Time,
	}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	query := `SELECT EXISTS (SELECT 1 FROM app_user WHERE username = ? OR email = ?)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, len(excludedUsers))
		for i, usr := range excludedUsers {
			ids[i] = usr.ID
		}
		var err error
		query, args, err = sqlx.In(
			`SELECT EXISTS (SELECT 1 FROM app_user WHERE (username = ? OR email = ?) AND id NOT IN (?))`,
			username, email, ids,
		)
		if err != nil {
			return errors.Wrap(err, "expanding user exclusion list")
		}
	}

	var exists bool
	err := repo.getExec(exec).QueryRowContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if exists {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	now := time.Now().UTC()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = now
	}
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = now
	}
	r := repo.row(usr)
	_, err := repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO app_user (`+userColumns+`) VALUES (`+strmangle.Placeholders(true, 10, 1, 1)+`)`,
		r.ID, r.Name, r.Username, r.Email, r.IsActive, r.Roles,
		r.PasswordHash, r.CreatedAt, r.UpdatedAt, r.LastLogin,
	)
	if err != nil {
		if constraintViolated(err, pqUniqueViolation) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unrow(r), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM app_user`
	var where []string
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			pat := "%" + filter.Search + "%"
			where = append(where, `(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)`)
			args = append(args, pat, pat, pat)
		}
		if len(filter.Roles) > 0 {
			where = append(where, `roles && ?`)
			args = append(args, pq.Array(filter.Roles))
		}
		if filter.IsActive != nil {
			where = append(where, `is_active = ?`)
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, `created_at >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, `created_at <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += orderBy(ordering, `username ASC`)

	rows, err := repo.getExec(exec).QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	defer rows.Close()

	var rws []userRow
	if err = sqlx.StructScan(rows, &rws); err != nil {
		return nil, errors.Wrap(err, "scanning users")
	}
	users := make([]user.User, len(rws))
	for i, r := range rws {
		users[i] = repo.unrow(r)
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		where string
		args  []interface{}
	)
	switch {
	case filter.ID != "":
		if !validUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		where, args = `id = $1`, []interface{}{filter.ID}
	case filter.Username != "":
		where, args = `username = $1`, []interface{}{filter.Username}
	case filter.Email != "":
		where, args = `email = $1`, []interface{}{filter.Email}
	case len(filter.UsernameOrEmail) > 0:
		uname := filter.UsernameOrEmail[0]
		email := uname
		if len(filter.UsernameOrEmail) > 1 {
			email = filter.UsernameOrEmail[1]
		}
		where, args = `username = $1 OR email = $2`, []interface{}{uname, email}
	default:
		return user.User{}, user.ErrNotFound
	}

	var r userRow
	err := repo.getExec(exec).QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_user WHERE `+where, args...).
		Scan(r.fields()...)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return repo.unrow(r), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	r := repo.row(usr)
	res, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE app_user
		SET name = $1, username = $2, email = $3, is_active = $4, roles = $5,
		    password_hash = $6, updated_at = $7, last_login = $8
		WHERE id = $9`,
		r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash, r.UpdatedAt, r.LastLogin, r.ID,
	)
	if err != nil {
		if constraintViolated(err, pqUniqueViolation) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	} else if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.unrow(r), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM app_user WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "expanding user ids")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	return getExec(repo.exec, svcExec)
}
