package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contact-vault/contact-vault/internal/api/contacts"
	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/occ"
)

var (
	staleVersion   = occ.Version("aaaaaaaaaaaaaaaa")
	currentVersion = occ.Version("bbbbbbbbbbbbbbbb")
)

func storedContact() *models.Contact {
	return &models.Contact{
		ID: 7, FirstName: "Astrid", LastName: "Lindqvist",
		Email: "astrid@example.com", Phone: "555-0100", City: "Portsmouth",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL)
}

func TestLoad_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/contacts/7", r.URL.Path)
		json.NewEncoder(w).Encode(storedContact())
	})

	contact, err := c.Load(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Astrid", contact.FirstName)
}

func TestLoad_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Load(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadForUpdate_CarriesToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("forUpdate"))
		json.NewEncoder(w).Encode(models.VersionedContact{
			Contact: *storedContact(),
			Version: currentVersion,
		})
	})

	versioned, err := c.LoadForUpdate(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, versioned.Version.Equal(currentVersion))
}

func TestAdd_PopulatesIdentity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		var submitted models.Contact
		require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
		assert.Zero(t, submitted.ID)

		submitted.ID = 5
		json.NewEncoder(w).Encode(models.VersionedContact{
			Contact: submitted,
			Version: currentVersion,
		})
	})

	versioned, err := c.Add(context.Background(), &models.Contact{FirstName: "Marcus", LastName: "Webb"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), versioned.Contact.ID)
	assert.False(t, versioned.Version.IsZero())
}

func TestAdd_ValidationProblems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "Validation failed",
			"details": []string{"First name is required"},
		})
	})

	_, err := c.Add(context.Background(), &models.Contact{LastName: "Webb"})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Problems[0], "First name")
}

func TestUpdate_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		var envelope contacts.ConcurrencyEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		assert.True(t, envelope.VersionToken.Equal(staleVersion))
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Update(context.Background(), storedContact(), staleVersion)
	assert.NoError(t, err)
}

func TestUpdate_ConflictCarriesCurrentState(t *testing.T) {
	current := storedContact()
	current.Phone = "555-0177"

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(contacts.ConcurrencyEnvelope{
			Contact:         storedContact(),
			DatabaseContact: current,
			VersionToken:    currentVersion,
		})
	})

	attempted := storedContact()
	attempted.Phone = "555-0199"
	err := c.Update(context.Background(), attempted, staleVersion)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "555-0199", conflict.Attempted.Phone, "conflict should keep the caller's rejected copy")
	assert.Equal(t, "555-0177", conflict.Current.Phone, "conflict should carry the stored state")
	assert.True(t, conflict.CurrentVersion.Equal(currentVersion), "retry must re-present the current token")
}

func TestUpdate_GoneConcurrently(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := c.Update(context.Background(), storedContact(), staleVersion)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_TransportFailureIsAmbiguous(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := NewClient(server.URL)
	server.Close() // connection refused from here on

	err := c.Update(context.Background(), storedContact(), staleVersion)

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.NotErrorIs(t, err, ErrNotFound)
	var conflict *ConflictError
	assert.False(t, errors.As(err, &conflict), "a transport failure must never look like a resolved conflict")
}

func TestDelete_Unconditional(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		body, _ := json.Marshal(map[string]string{"message": "Contact deleted"})
		w.Write(body)
	})

	deleted, err := c.Delete(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestDelete_AlreadyGone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	deleted, err := c.Delete(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDelete_ConditionalConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req contacts.DeleteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.VersionToken.Equal(staleVersion))

		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(contacts.ConcurrencyEnvelope{
			Contact:         storedContact(),
			DatabaseContact: storedContact(),
			VersionToken:    currentVersion,
		})
	})

	_, err := c.Delete(context.Background(), 7, staleVersion)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.CurrentVersion.Equal(currentVersion))
}

func TestList_BuildsGridQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "city", q.Get("filterColumn"))
		assert.Equal(t, "port", q.Get("filterText"))
		assert.Equal(t, "lastName", q.Get("sortColumn"))
		assert.Equal(t, "true", q.Get("ascending"))
		assert.Equal(t, "2", q.Get("page"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"contacts": []*models.Contact{storedContact()},
			"pagination": map[string]int{
				"page": 2, "per_page": 20, "total": 21,
			},
		})
	})

	results, total, err := c.List(context.Background(), ListOptions{
		FilterColumn: "city", FilterText: "port",
		SortColumn: "lastName", Ascending: true,
		Page: 2, PerPage: 20,
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 21, total)
}

func TestAuditTrail_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/contacts/7/audit", r.URL.Path)
		assert.Equal(t, "Modified", r.URL.Query().Get("action"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"audits": []map[string]interface{}{
				{"id": 92, "contactId": 7, "actor": "astrid.lindqvist", "action": "Modified",
					"changes": map[string]interface{}{"changes": []interface{}{}}},
			},
			"pagination": map[string]int{"page": 1, "per_page": 20, "total": 1},
		})
	})

	entries, total, err := c.AuditTrail(context.Background(), 7, AuditOptions{Action: "Modified"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionModified, entries[0].Action)
	assert.Equal(t, 1, total)
}

func TestWithToken_SendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer some-actor-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(storedContact())
	}).WithToken("some-actor-token")

	_, err := c.Load(context.Background(), 7)
	require.NoError(t, err)
}
