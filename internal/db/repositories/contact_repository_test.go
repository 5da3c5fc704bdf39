package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/occ"
)

// ---------------------------------------------------------------------------
// Column definitions and row builders
// ---------------------------------------------------------------------------

var contactCols = []string{
	"id", "first_name", "last_name", "email", "phone", "street", "city", "state", "zip_code",
	"row_version", "created_by", "created_on", "modified_by", "modified_on",
}

var (
	tokenA = occ.Version("aaaaaaaaaaaaaaaa")
	tokenB = occ.Version("bbbbbbbbbbbbbbbb")
)

func storedContactRow(version occ.Version) *sqlmock.Rows {
	return sqlmock.NewRows(contactCols).AddRow(
		int64(7), "Astrid", "Lindqvist", "astrid@example.com", "555-0100",
		"12 Harbor Lane", "Portsmouth", "NH", "03801",
		[]byte(version), "seed", time.Now(), nil, nil,
	)
}

func editedContact() *models.Contact {
	return &models.Contact{
		ID: 7, FirstName: "Astrid", LastName: "Lindqvist",
		Email: "astrid@example.com", Phone: "555-0199",
		Street: "12 Harbor Lane", City: "Portsmouth", State: "NH", ZipCode: "03801",
	}
}

func newContactRepo(t *testing.T) (*ContactRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewContactRepository(sqlx.NewDb(db, "postgres")), mock
}

// ---------------------------------------------------------------------------
// Load / LoadForUpdate
// ---------------------------------------------------------------------------

func TestLoad_Found(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenA))

	contact, err := repo.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if contact == nil || contact.FirstName != "Astrid" {
		t.Errorf("unexpected contact: %+v", contact)
	}
}

func TestLoad_Missing(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnError(sql.ErrNoRows)

	contact, err := repo.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if contact != nil {
		t.Errorf("expected nil for a missing identity, got %+v", contact)
	}
}

func TestLoadForUpdate_CarriesToken(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenA))

	versioned, err := repo.LoadForUpdate(context.Background(), 7)
	if err != nil {
		t.Fatalf("LoadForUpdate failed: %v", err)
	}
	if !versioned.Version.Equal(tokenA) {
		t.Errorf("version = %s, want the stored token", versioned.Version)
	}
	if versioned.Meta.CreatedBy != "seed" {
		t.Errorf("CreatedBy = %q, want seed", versioned.Meta.CreatedBy)
	}
}

// ---------------------------------------------------------------------------
// Add
// ---------------------------------------------------------------------------

func TestAdd_AssignsIdentityAndBackfillsAudit(t *testing.T) {
	repo, mock := newContactRepo(t)

	// Order matters: the Created audit entry is captured before the contact
	// insert assigns the identity, and the link is patched only after commit.
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO contact_audits").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(91)))
	mock.ExpectQuery("INSERT INTO contacts").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE contact_audits SET contact_id").
		WithArgs(int64(5), int64(91)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var shipped []*models.ContactAudit
	repo.WithAuditSink(func(entries []*models.ContactAudit) { shipped = entries })

	contact := &models.Contact{FirstName: "Marcus", LastName: "Webb"}
	versioned, err := repo.Add(context.Background(), "marcus.webb", contact)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if contact.ID != 5 {
		t.Errorf("identity = %d, want 5 written back onto the caller's record", contact.ID)
	}
	if versioned.Version.IsZero() {
		t.Error("Add must mint a version token")
	}
	if len(shipped) != 1 || shipped[0].Action != models.ActionCreated {
		t.Fatalf("sink received %+v, want one Created entry", shipped)
	}
	if shipped[0].ContactID != 5 {
		t.Errorf("shipped entry ContactID = %d, want 5 (patched after commit)", shipped[0].ContactID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestAdd_ToleratesBackfillFailure(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO contact_audits").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(91)))
	mock.ExpectQuery("INSERT INTO contacts").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE contact_audits SET contact_id").
		WillReturnError(sql.ErrConnDone)

	_, err := repo.Add(context.Background(), "marcus.webb", &models.Contact{FirstName: "Marcus", LastName: "Webb"})
	if err != nil {
		t.Errorf("Add failed on a lost backfill, want success: %v", err)
	}
}

func TestAdd_RejectsAssignedIdentity(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := repo.Add(context.Background(), "marcus.webb", &models.Contact{ID: 3, FirstName: "Marcus", LastName: "Webb"})
	if !errors.Is(err, ErrIdentityAssigned) {
		t.Errorf("err = %v, want ErrIdentityAssigned", err)
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestUpdate_Success(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenA))
	mock.ExpectExec("UPDATE contacts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO contact_audits").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(92)))
	mock.ExpectCommit()

	versioned, err := repo.Update(context.Background(), "astrid.lindqvist", editedContact(), tokenA)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if versioned.Version.IsZero() || versioned.Version.Equal(tokenA) {
		t.Errorf("new version = %s, want a fresh token", versioned.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestUpdate_ConflictCarriesCurrentState(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenB))
	// Conditional update misses: the stored token is no longer tokenA. The
	// re-read in the same transaction classifies the miss as a conflict.
	mock.ExpectExec("UPDATE contacts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenB))
	mock.ExpectRollback()

	sinkCalled := false
	repo.WithAuditSink(func([]*models.ContactAudit) { sinkCalled = true })

	_, err := repo.Update(context.Background(), "astrid.lindqvist", editedContact(), tokenA)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if conflict.Attempted.Phone != "555-0199" {
		t.Error("conflict should keep the rejected submission")
	}
	if conflict.Current.Phone != "555-0100" {
		t.Error("conflict should carry the winning writer's stored state")
	}
	if !conflict.CurrentVersion.Equal(tokenB) {
		t.Errorf("CurrentVersion = %s, want the stored token", conflict.CurrentVersion)
	}
	if sinkCalled {
		t.Error("no audit entries may ship for an aborted commit")
	}
}

func TestUpdate_ConcurrentDeleteIsNotFound(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenB))
	mock.ExpectExec("UPDATE contacts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Row gone on the re-read: a concurrent delete won, not a conflict.
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "astrid.lindqvist", editedContact(), tokenA)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		t.Error("a concurrent delete must not surface as a conflict")
	}
}

func TestUpdate_RequiresVersionToken(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenA))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "astrid.lindqvist", editedContact(), nil)
	if !errors.Is(err, ErrVersionRequired) {
		t.Errorf("err = %v, want ErrVersionRequired", err)
	}
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestDelete_Unconditional(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenA))
	mock.ExpectExec("DELETE FROM contacts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO contact_audits").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(93)))
	mock.ExpectCommit()

	var shipped []*models.ContactAudit
	repo.WithAuditSink(func(entries []*models.ContactAudit) { shipped = entries })

	deleted, err := repo.Delete(context.Background(), "astrid.lindqvist", 7, nil)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Error("deleted = false, want true")
	}
	if len(shipped) != 1 || shipped[0].Action != models.ActionDeleted {
		t.Fatalf("sink received %+v, want one Deleted entry", shipped)
	}
	// The audit entry must preserve the full pre-delete state.
	if shipped[0].Changes.Empty() {
		t.Error("Deleted entry must carry the removed record's fields")
	}
}

func TestDelete_Missing(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	deleted, err := repo.Delete(context.Background(), "astrid.lindqvist", 7, nil)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted {
		t.Error("deleted = true for a missing identity, want false")
	}
}

func TestDelete_ConditionalConflict(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenB))
	mock.ExpectExec("DELETE FROM contacts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WillReturnRows(storedContactRow(tokenB))
	mock.ExpectRollback()

	_, err := repo.Delete(context.Background(), "astrid.lindqvist", 7, tokenA)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if !conflict.CurrentVersion.Equal(tokenB) {
		t.Errorf("CurrentVersion = %s, want the stored token", conflict.CurrentVersion)
	}
}
