package repositories

import (
	"context"
	"regexp"
	"testing"

	"hive/internal/domain"
	"hive/internal/services"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var duplicateEntry = &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ana@acme.test' for key 'users_email_unique'"}

func TestUsersCreateAssignsRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM roles WHERE guard_name = ? AND name = ? LIMIT 1")).
		WithArgs(domain.GuardCentral, "Editor").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (name,email,password,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?)")).
		WithArgs("Ana", "ana@acme.test", "$2a$hash", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_roles WHERE user_id = ?")).
		WithArgs(int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles (user_id,role_id) VALUES (?,?)")).
		WithArgs(int64(12), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := UsersRepository{DB: db}.Create(context.Background(), services.NewUser{
		Name: "Ana", Email: "ana@acme.test", PasswordHash: "$2a$hash", Role: "Editor", Guard: domain.GuardCentral,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersCreateDuplicateEmailIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM roles").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec("INSERT INTO users").WillReturnError(duplicateEntry)
	mock.ExpectRollback()

	_, err = UsersRepository{DB: db}.Create(context.Background(), services.NewUser{
		Name: "Ana", Email: "ana@acme.test", Role: "Editor", Guard: domain.GuardCentral,
	})
	require.True(t, domain.IsConflict(err), "got %v", err)
	assert.Contains(t, err.Error(), "email is already taken")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersCreateUnknownRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM roles").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err = UsersRepository{DB: db}.Create(context.Background(), services.NewUser{Name: "Ana", Email: "a@acme.test", Role: "Ghost"})
	assert.True(t, domain.IsValidation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersUpdateOnlySetsGivenFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	name := "Bo"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET updated_at = ?, name = ? WHERE id = ?")).
		WithArgs(sqlmock.AnyArg(), "Bo", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, UsersRepository{DB: db}.Update(context.Background(), 4, services.UserChanges{Name: &name}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersUpdateDuplicateEmailIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	email := "taken@acme.test"
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").WillReturnError(duplicateEntry)
	mock.ExpectRollback()

	err = UsersRepository{DB: db}.Update(context.Background(), 4, services.UserChanges{Email: &email})
	assert.True(t, domain.IsConflict(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_roles WHERE user_id = ?")).WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = ?")).WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_roles").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := UsersRepository{DB: db}
	require.NoError(t, repo.Delete(context.Background(), 4))
	assert.True(t, domain.IsNotFound(repo.Delete(context.Background(), 4)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRolesCreateSyncsPermissions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO roles (name,guard_name,created_at,updated_at) VALUES (?,?,?,?)")).
		WithArgs("Cashier", domain.GuardTenant, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM permissions WHERE guard_name = ? AND name IN (?,?)")).
		WithArgs(domain.GuardTenant, "orders.view", "orders.edit").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(21, "orders.view").AddRow(22, "orders.edit"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_permissions WHERE role_id = ?")).WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO role_permissions (role_id,permission_id) VALUES (?,?),(?,?)")).
		WithArgs(int64(7), int64(21), int64(7), int64(22)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	id, err := RolesRepository{DB: db}.Create(context.Background(), domain.GuardTenant, domain.RoleInput{
		Name: "Cashier", Permissions: []string{"orders.view", "orders.edit"}, SyncPermissions: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRolesCreateRejectsUnknownPermission(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roles").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery("FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(21, "orders.view"))
	mock.ExpectRollback()

	_, err = RolesRepository{DB: db}.Create(context.Background(), domain.GuardTenant, domain.RoleInput{
		Name: "Cashier", Permissions: []string{"orders.view", "users.view"}, SyncPermissions: true,
	})
	require.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "users.view")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRolesCreateDuplicateNameIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roles").WillReturnError(duplicateEntry)
	mock.ExpectRollback()

	_, err = RolesRepository{DB: db}.Create(context.Background(), domain.GuardCentral, domain.RoleInput{Name: "Editor"})
	assert.True(t, domain.IsConflict(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRolesUpdateAndDeleteStayInGuard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE roles SET name = ?, updated_at = ? WHERE guard_name = ? AND id = ?")).
		WithArgs("Writer", sqlmock.AnyArg(), domain.GuardCentral, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_permissions WHERE role_id = ?")).WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_roles WHERE role_id = ?")).WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM roles WHERE guard_name = ? AND id = ?")).
		WithArgs(domain.GuardCentral, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := RolesRepository{DB: db}
	require.NoError(t, repo.Update(context.Background(), domain.GuardCentral, 2, domain.RoleInput{Name: "Writer"}))
	assert.True(t, domain.IsNotFound(repo.Delete(context.Background(), domain.GuardCentral, 3)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionsListByGuard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("information_schema\\.columns").WithArgs("permissions", "group_name").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("group_name"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM permissions WHERE guard_name = ? ORDER BY name, id")).
		WithArgs(domain.GuardTenant).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "group_name", "guard_name", "created_at"}).
			AddRow(22, "orders.edit", "Orders", "tenant", joined).
			AddRow(21, "orders.view", "Orders", "tenant", joined))

	perms, err := PermissionsRepository{DB: db}.ListByGuard(context.Background(), domain.GuardTenant)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, "orders.edit", perms[0].Name)
	assert.Equal(t, "Orders", perms[1].Group())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionsCreateAndDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("information_schema\\.columns").WithArgs("permissions", "group_name").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO permissions (name,guard_name,created_at,updated_at) VALUES (?,?,?,?)")).
		WithArgs("users.export", domain.GuardCentral, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(30, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_permissions WHERE permission_id = ?")).WithArgs(int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM permissions WHERE guard_name = ? AND id = ?")).
		WithArgs(domain.GuardCentral, int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := PermissionsRepository{DB: db}
	id, err := repo.Create(context.Background(), domain.GuardCentral, domain.PermissionInput{Name: "users.export", Group: "Users"})
	require.NoError(t, err)
	assert.Equal(t, int64(30), id)
	require.NoError(t, repo.Delete(context.Background(), domain.GuardCentral, 30))
	require.NoError(t, mock.ExpectationsWereMet())
}
