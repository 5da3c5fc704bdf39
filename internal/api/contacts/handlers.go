// handlers.go implements the contact CRUD endpoints, including the
// version-token protocol that turns concurrent edit collisions into 409
// responses instead of silent overwrites.
package contacts

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/db/repositories"
	"github.com/contact-vault/contact-vault/internal/middleware"
	"github.com/contact-vault/contact-vault/internal/validation"
)

// ContactHandlers handles contact CRUD and audit inspection endpoints
type ContactHandlers struct {
	repo      *repositories.ContactRepository
	auditRepo *repositories.AuditRepository
}

// NewContactHandlers creates a new ContactHandlers instance
func NewContactHandlers(db *sqlx.DB, repo *repositories.ContactRepository) *ContactHandlers {
	return &ContactHandlers{
		repo:      repo,
		auditRepo: repositories.NewAuditRepository(db),
	}
}

// contactID parses the :id path parameter. A non-numeric id aborts with 400.
func contactID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid contact id",
		})
		return 0, false
	}
	return id, true
}

// @Summary      Get contact
// @Description  Retrieve a contact. With forUpdate=true the response wraps the contact with its current version token, the baseline for a later conditional update.
// @Tags         Contacts
// @Produce      json
// @Param        id         path   int     true   "Contact ID"
// @Param        forUpdate  query  bool    false  "Include the version token for editing"
// @Success      200  {object}  map[string]interface{}  "Contact, or {contact, versionToken, meta} when forUpdate=true"
// @Failure      404  {object}  map[string]interface{}  "Contact not found"
// @Router       /api/v1/contacts/{id} [get]
// GetContactHandler retrieves a single contact
// GET /api/v1/contacts/:id?forUpdate=true
func (h *ContactHandlers) GetContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := contactID(c)
		if !ok {
			return
		}

		if c.Query("forUpdate") == "true" {
			vc, err := h.repo.LoadForUpdate(c.Request.Context(), id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to load contact",
				})
				return
			}
			if vc == nil {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Contact not found",
				})
				return
			}
			c.JSON(http.StatusOK, vc)
			return
		}

		contact, err := h.repo.Load(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load contact",
			})
			return
		}
		if contact == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Contact not found",
			})
			return
		}

		c.JSON(http.StatusOK, contact)
	}
}

// @Summary      List contacts
// @Description  Get a filtered, sorted, paginated page of contacts.
// @Tags         Contacts
// @Produce      json
// @Param        filterColumn  query  string  false  "Column to filter on (name, phone, street, city, state, zip)"
// @Param        filterText    query  string  false  "Case-insensitive contains match"
// @Param        sortColumn    query  string  false  "Column to sort on (default name)"
// @Param        ascending     query  bool    false  "Sort direction (default true)"
// @Param        page          query  int     false  "Page number (default 1)"
// @Param        per_page      query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "contacts: []models.Contact, pagination: {page, per_page, total}"
// @Router       /api/v1/contacts [get]
// ListContactsHandler lists contacts with filtering and pagination
// GET /api/v1/contacts?filterColumn=city&filterText=port&sortColumn=name&ascending=true&page=1&per_page=20
func (h *ContactHandlers) ListContactsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		filter := repositories.ContactFilter{
			FilterColumn:  c.Query("filterColumn"),
			FilterText:    c.Query("filterText"),
			SortColumn:    c.Query("sortColumn"),
			SortAscending: c.DefaultQuery("ascending", "true") != "false",
			Page:          page,
			PerPage:       perPage,
		}

		contacts, total, err := h.repo.List(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list contacts",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"contacts": contacts,
			"pagination": gin.H{
				"page":     filter.Page,
				"per_page": filter.PerPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Create contact
// @Description  Store a new contact. The response carries the assigned id and the minted version token.
// @Tags         Contacts
// @Accept       json
// @Produce      json
// @Param        contact  body  models.Contact  true  "Contact to create (id must be absent or zero)"
// @Success      200  {object}  map[string]interface{}  "{contact, versionToken}"
// @Failure      400  {object}  map[string]interface{}  "Validation failure"
// @Router       /api/v1/contacts [post]
// CreateContactHandler stores a new contact
// POST /api/v1/contacts
func (h *ContactHandlers) CreateContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var contact models.Contact
		if err := c.ShouldBindJSON(&contact); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		if contact.ID != 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "New contacts must not carry an id",
			})
			return
		}

		// Reject before any transaction is opened: a validation failure must
		// not consume a version token or leave an audit entry.
		if problems := validation.ValidateContact(&contact); len(problems) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Contact validation failed",
				"details": problems,
			})
			return
		}

		actor := middleware.ActorFromContext(c)
		vc, err := h.repo.Add(c.Request.Context(), actor, &contact)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create contact",
			})
			return
		}

		c.JSON(http.StatusOK, vc)
	}
}

// @Summary      Update contact
// @Description  Conditionally update a contact. The request envelope must carry the version token the edit was based on; a stale token yields 409 with the current database state and token.
// @Tags         Contacts
// @Accept       json
// @Produce      json
// @Param        id        path  int                  true  "Contact ID"
// @Param        envelope  body  ConcurrencyEnvelope  true  "Edited contact + baseline version token"
// @Success      204  "Updated"
// @Failure      400  {object}  map[string]interface{}  "Validation failure or missing token"
// @Failure      404  {object}  map[string]interface{}  "Contact no longer exists"
// @Failure      409  {object}  ConcurrencyEnvelope     "Conflict: body carries the rejected submission, the current database contact, and the current token"
// @Router       /api/v1/contacts/{id} [put]
// UpdateContactHandler conditionally updates a contact
// PUT /api/v1/contacts/:id
func (h *ContactHandlers) UpdateContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := contactID(c)
		if !ok {
			return
		}

		var envelope ConcurrencyEnvelope
		if err := c.ShouldBindJSON(&envelope); err != nil || envelope.Contact == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		if envelope.Contact.ID == 0 {
			envelope.Contact.ID = id
		}
		if envelope.Contact.ID != id {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Contact id does not match the request path",
			})
			return
		}
		if envelope.VersionToken.IsZero() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "versionToken is required for updates",
			})
			return
		}

		if problems := validation.ValidateContact(envelope.Contact); len(problems) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Contact validation failed",
				"details": problems,
			})
			return
		}

		actor := middleware.ActorFromContext(c)
		_, err := h.repo.Update(c.Request.Context(), actor, envelope.Contact, envelope.VersionToken)
		if err != nil {
			var conflict *repositories.ConflictError
			switch {
			case errors.As(err, &conflict):
				c.JSON(http.StatusConflict, ConcurrencyEnvelope{
					Contact:         conflict.Attempted,
					DatabaseContact: conflict.Current,
					VersionToken:    conflict.CurrentVersion,
				})
			case errors.Is(err, repositories.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Contact not found",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to update contact",
				})
			}
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary      Delete contact
// @Description  Delete a contact. Without a version token the delete is unconditional; with one it participates in the concurrency protocol and can conflict.
// @Tags         Contacts
// @Accept       json
// @Produce      json
// @Param        id    path  int            true   "Contact ID"
// @Param        body  body  DeleteRequest  false  "Optional expected version token"
// @Success      200  {object}  map[string]interface{}  "Deleted"
// @Failure      404  {object}  map[string]interface{}  "Contact not found"
// @Failure      409  {object}  ConcurrencyEnvelope     "Conditional delete lost to a concurrent edit"
// @Router       /api/v1/contacts/{id} [delete]
// DeleteContactHandler deletes a contact
// DELETE /api/v1/contacts/:id
func (h *ContactHandlers) DeleteContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := contactID(c)
		if !ok {
			return
		}

		// Body is optional; absent or empty token = unconditional delete.
		var req DeleteRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid request body",
				})
				return
			}
		}

		actor := middleware.ActorFromContext(c)
		deleted, err := h.repo.Delete(c.Request.Context(), actor, id, req.VersionToken)
		if err != nil {
			var conflict *repositories.ConflictError
			if errors.As(err, &conflict) {
				c.JSON(http.StatusConflict, ConcurrencyEnvelope{
					Contact:         conflict.Attempted,
					DatabaseContact: conflict.Current,
					VersionToken:    conflict.CurrentVersion,
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete contact",
			})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Contact not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Contact deleted",
		})
	}
}

// @Summary      Contact audit trail
// @Description  List the audit entries of one contact, newest first, optionally filtered by action, actor, and time range.
// @Tags         Contacts
// @Produce      json
// @Param        id        path   int     true   "Contact ID"
// @Param        action    query  string  false  "Created, Modified, or Deleted"
// @Param        actor     query  string  false  "Actor name"
// @Param        start     query  string  false  "RFC 3339 lower bound on event time"
// @Param        end       query  string  false  "RFC 3339 upper bound on event time"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "audits: []models.ContactAudit, pagination: {page, per_page, total}"
// @Failure      400  {object}  map[string]interface{}  "Bad filter"
// @Router       /api/v1/contacts/{id}/audit [get]
// ContactAuditHandler lists the audit trail of one contact
// GET /api/v1/contacts/:id/audit
func (h *ContactHandlers) ContactAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := contactID(c)
		if !ok {
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		var filters repositories.AuditFilters
		if s := c.Query("action"); s != "" {
			action := models.AuditAction(s)
			switch action {
			case models.ActionCreated, models.ActionModified, models.ActionDeleted:
				filters.Action = &action
			default:
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "action must be Created, Modified, or Deleted",
				})
				return
			}
		}
		if s := c.Query("actor"); s != "" {
			filters.Actor = &s
		}
		if s := c.Query("start"); s != "" {
			start, err := time.Parse(time.RFC3339, s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "start must be an RFC 3339 timestamp",
				})
				return
			}
			filters.StartDate = &start
		}
		if s := c.Query("end"); s != "" {
			end, err := time.Parse(time.RFC3339, s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "end must be an RFC 3339 timestamp",
				})
				return
			}
			filters.EndDate = &end
		}

		audits, total, err := h.auditRepo.ListForContact(c.Request.Context(), id, filters, perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list audit entries",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"audits": audits,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}
