// contact_filter.go implements the read-only query surface: filtered,
// sorted, paginated listing of contacts. Listing carries no versioning
// concerns; every call re-executes the query, so results are finite and
// restartable.
package repositories

import (
	"context"
	"fmt"

	"github.com/contact-vault/contact-vault/internal/db/models"
)

// Filter and sort columns accepted by List. "name" spans first and last name
// together, matching how callers search for people rather than columns.
const (
	ColumnName   = "name"
	ColumnEmail  = "email"
	ColumnPhone  = "phone"
	ColumnStreet = "street"
	ColumnCity   = "city"
	ColumnState  = "state"
	ColumnZip    = "zip"
)

// filterExpr maps an accepted column to the SQL expression it filters or
// sorts on. Whitelisting here is what keeps caller-supplied column names out
// of the SQL text.
var filterExpr = map[string]string{
	ColumnName:   "(first_name || ' ' || last_name)",
	ColumnEmail:  "email",
	ColumnPhone:  "phone",
	ColumnStreet: "street",
	ColumnCity:   "city",
	ColumnState:  "state",
	ColumnZip:    "zip_code",
}

// ContactFilter describes one List call: an optional case-insensitive
// contains filter, a sort column with direction, and a page window.
type ContactFilter struct {
	FilterColumn  string
	FilterText    string
	SortColumn    string
	SortAscending bool
	Page          int
	PerPage       int
}

// normalize clamps the page window and resolves column names, falling back
// to a name sort for anything unrecognized.
func (f *ContactFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 20
	}
	if _, ok := filterExpr[f.FilterColumn]; !ok {
		f.FilterColumn = ColumnName
	}
	if _, ok := filterExpr[f.SortColumn]; !ok {
		f.SortColumn = ColumnName
	}
}

// List returns one page of contacts plus the total match count.
func (r *ContactRepository) List(ctx context.Context, filter ContactFilter) ([]models.Contact, int, error) {
	filter.normalize()

	countQuery := `SELECT COUNT(*) FROM contacts WHERE 1=1`
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE 1=1`

	args := make([]interface{}, 0)
	paramIndex := 1

	if filter.FilterText != "" {
		clause := fmt.Sprintf(` AND %s ILIKE $%d`, filterExpr[filter.FilterColumn], paramIndex)
		countQuery += clause
		query += clause
		args = append(args, "%"+filter.FilterText+"%")
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contacts: %w", err)
	}

	direction := "DESC"
	if filter.SortAscending {
		direction = "ASC"
	}
	query += fmt.Sprintf(` ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		filterExpr[filter.SortColumn], direction, direction, paramIndex, paramIndex+1)
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)

	rows := make([]contactRow, 0)
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list contacts: %w", err)
	}

	contacts := make([]models.Contact, 0, len(rows))
	for _, row := range rows {
		contacts = append(contacts, row.Contact)
	}
	return contacts, total, nil
}
