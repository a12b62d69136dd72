package repositories

import (
	"context"
	"regexp"
	"testing"

	"hive/internal/domain"
	"hive/internal/services"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (SearchRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return SearchRepository{DB: db}, mock
}

func TestSearchUsersWithPinAndSearch(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE ((name LIKE ? OR email LIKE ?))")).
		WithArgs("%acme%", "%acme%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE ((name LIKE ? OR email LIKE ?)) ORDER BY (id = ?) DESC, id ASC LIMIT 10 OFFSET 0")).
		WithArgs("%acme%", "%acme%", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(7).AddRow(4))

	q := domain.NewQuery()
	q.Search = "acme"
	res, err := repo.Search(context.Background(), domain.ResourceUsers, services.SearchRequest{
		Query: q, Guard: domain.GuardCentral, Limit: 10, PinID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7, 4}, res.IDs)
	assert.Equal(t, 3, res.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchUsersFiltersAndSort(t *testing.T) {
	repo, mock := newMock(t)

	where := "WHERE (EXISTS (SELECT 1 FROM user_roles ur JOIN roles ro ON ro.id = ur.role_id WHERE ur.user_id = users.id AND ro.name = ?) AND is_active = ?)"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users "+where)).
		WithArgs("Admin", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users "+where+" ORDER BY name DESC, id ASC LIMIT 10 OFFSET 10")).
		WithArgs("Admin", true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9).AddRow(2))

	q := domain.Query{
		Filters:   map[string]string{domain.FilterStatus: "active", domain.FilterRole: "Admin"},
		SortField: "name",
		SortDir:   domain.SortDesc,
		Page:      2,
		PageSize:  10,
	}
	res, err := repo.Search(context.Background(), domain.ResourceUsers, services.SearchRequest{
		Query: q, Offset: q.Offset(), Limit: q.PageSize,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 2}, res.IDs)
	assert.Equal(t, 25, res.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchOffsetPastTotalSkipsIDQuery(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM permissions")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	res, err := repo.Search(context.Background(), domain.ResourcePermissions, services.SearchRequest{
		Query: domain.NewQuery(), Offset: 20, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, res.IDs)
	assert.Equal(t, 4, res.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchRolesTenantGuardAndExplicitIDs(t *testing.T) {
	repo, mock := newMock(t)

	where := "WHERE (id IN (?,?,?) AND guard_name = ?)"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM roles "+where)).
		WithArgs(int64(3), int64(1), int64(2), domain.GuardTenant).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM roles "+where+" ORDER BY created_at ASC, id ASC")).
		WithArgs(int64(3), int64(1), int64(2), domain.GuardTenant).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2).AddRow(3))

	q := domain.Query{IDs: []int64{3, 1, 2}, SortField: "created_at", SortDir: domain.SortAsc, Page: 1, PageSize: 3}
	res, err := repo.Search(context.Background(), domain.ResourceRoles, services.SearchRequest{
		Query: q, Guard: domain.GuardTenant,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, res.IDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchUnknownResource(t *testing.T) {
	repo, _ := newMock(t)
	_, err := repo.Search(context.Background(), "invoices", services.SearchRequest{Query: domain.NewQuery()})
	assert.True(t, domain.IsNotFound(err))
}

func TestSearchBadDateFilter(t *testing.T) {
	repo, _ := newMock(t)
	q := domain.NewQuery()
	q.Filters = map[string]string{domain.FilterDateFrom: "yesterday"}
	_, err := repo.Search(context.Background(), domain.ResourceUsers, services.SearchRequest{Query: q})
	assert.True(t, domain.IsValidation(err))
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM roles WHERE ((name LIKE ?))")).
		WithArgs(`%50\%\_off%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	q := domain.NewQuery()
	q.Search = "50%_off"
	res, err := repo.Search(context.Background(), domain.ResourceRoles, services.SearchRequest{Query: q, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}
