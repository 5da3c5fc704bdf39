package repositories

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// ---------------------------------------------------------------------------
// Filter normalization
// ---------------------------------------------------------------------------

func TestContactFilter_Normalize(t *testing.T) {
	tests := []struct {
		name   string
		filter ContactFilter
		want   ContactFilter
	}{
		{
			name:   "defaults",
			filter: ContactFilter{},
			want:   ContactFilter{FilterColumn: ColumnName, SortColumn: ColumnName, Page: 1, PerPage: 20},
		},
		{
			name:   "unknown columns fall back to name",
			filter: ContactFilter{FilterColumn: "id; DROP TABLE contacts", SortColumn: "row_version", Page: 2, PerPage: 50},
			want:   ContactFilter{FilterColumn: ColumnName, SortColumn: ColumnName, Page: 2, PerPage: 50},
		},
		{
			name:   "oversized page window clamped",
			filter: ContactFilter{FilterColumn: ColumnCity, SortColumn: ColumnCity, Page: -3, PerPage: 5000},
			want:   ContactFilter{FilterColumn: ColumnCity, SortColumn: ColumnCity, Page: 1, PerPage: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.filter.normalize()
			if tt.filter != tt.want {
				t.Errorf("normalize() = %+v, want %+v", tt.filter, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestList_FilterAndSort(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectQuery(`SELECT COUNT.*FROM contacts WHERE 1=1 AND city ILIKE`).
		WithArgs("%port%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT.*FROM contacts WHERE 1=1 AND city ILIKE.*ORDER BY city ASC, id ASC LIMIT`).
		WithArgs("%port%", 20, 0).
		WillReturnRows(storedContactRow(tokenA))

	contacts, total, err := repo.List(context.Background(), ContactFilter{
		FilterColumn:  ColumnCity,
		FilterText:    "port",
		SortColumn:    ColumnCity,
		SortAscending: true,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || len(contacts) != 1 {
		t.Fatalf("got %d contacts (total %d), want 1", len(contacts), total)
	}
	if contacts[0].City != "Portsmouth" {
		t.Errorf("city = %q, want Portsmouth", contacts[0].City)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestList_NameSpansBothNames(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectQuery(`SELECT COUNT.*first_name \|\| ' ' \|\| last_name.*ILIKE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT.*FROM contacts.*ILIKE.*ORDER BY`).
		WillReturnRows(storedContactRow(tokenA))

	_, _, err := repo.List(context.Background(), ContactFilter{
		FilterColumn: ColumnName,
		FilterText:   "astrid lind",
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("name filter should match across first and last name: %v", err)
	}
}

func TestList_NoFilterSkipsWhereClause(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contacts WHERE 1=1$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT.*FROM contacts WHERE 1=1 ORDER BY`).
		WithArgs(20, 0).
		WillReturnRows(storedContactRow(tokenA))

	_, total, err := repo.List(context.Background(), ContactFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
