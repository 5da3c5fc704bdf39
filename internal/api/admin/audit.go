// Package admin implements the maintenance endpoints that sit outside the
// normal contact API: inspecting and repairing audit entries whose identity
// backfill was lost. Access is guarded by a bcrypt-hashed shared token
// generated with cmd/hash, not by the regular actor tokens, because these
// endpoints mutate the audit trail itself.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/auth"
	"github.com/contact-vault/contact-vault/internal/db/repositories"
)

// MaintenanceTokenHeader carries the shared maintenance token.
const MaintenanceTokenHeader = "X-Maintenance-Token"

// AuditMaintenanceHandlers handles audit repair endpoints
type AuditMaintenanceHandlers struct {
	recorder  *repositories.AuditRecorder
	auditRepo *repositories.AuditRepository
	tokenHash string
}

// NewAuditMaintenanceHandlers creates a new AuditMaintenanceHandlers instance.
// An empty tokenHash disables the endpoints entirely.
func NewAuditMaintenanceHandlers(db *sqlx.DB, tokenHash string) *AuditMaintenanceHandlers {
	return &AuditMaintenanceHandlers{
		recorder:  repositories.NewAuditRecorder(db),
		auditRepo: repositories.NewAuditRepository(db),
		tokenHash: tokenHash,
	}
}

// authorize checks the maintenance token header; on failure it writes the
// error response and returns false.
func (h *AuditMaintenanceHandlers) authorize(c *gin.Context) bool {
	if !auth.VerifyMaintenanceToken(h.tokenHash, c.GetHeader(MaintenanceTokenHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid or missing maintenance token",
		})
		return false
	}
	return true
}

// @Summary      List orphaned audit entries
// @Description  List Created audit entries whose contact link was never backfilled (contact_id still 0).
// @Tags         Maintenance
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "orphans: []models.ContactAudit, pagination: {page, per_page, total}"
// @Failure      401  {object}  map[string]interface{}  "Invalid maintenance token"
// @Router       /api/v1/admin/audit/orphans [get]
// ListOrphansHandler lists unlinked Created audit entries
// GET /api/v1/admin/audit/orphans
func (h *AuditMaintenanceHandlers) ListOrphansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authorize(c) {
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

		orphans, total, err := h.auditRepo.ListOrphans(c.Request.Context(), perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list orphaned audit entries",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"orphans": orphans,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// relinkRequest names the contact an orphaned audit entry belongs to.
type relinkRequest struct {
	ContactID int64 `json:"contactId"`
}

// @Summary      Relink an orphaned audit entry
// @Description  Manually patch the contact link of an audit entry whose automatic backfill failed. Only entries still unlinked (contact_id = 0) are touched.
// @Tags         Maintenance
// @Accept       json
// @Produce      json
// @Param        id    path  int            true  "Audit entry ID"
// @Param        body  body  relinkRequest  true  "Target contact id"
// @Success      200  {object}  map[string]interface{}  "Relinked"
// @Failure      401  {object}  map[string]interface{}  "Invalid maintenance token"
// @Failure      404  {object}  map[string]interface{}  "No unlinked entry with that id"
// @Router       /api/v1/admin/audit/{id}/relink [post]
// RelinkHandler patches the contact link of one orphaned audit entry
// POST /api/v1/admin/audit/:id/relink
func (h *AuditMaintenanceHandlers) RelinkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authorize(c) {
			return
		}

		auditID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || auditID < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid audit entry id",
			})
			return
		}

		var req relinkRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.ContactID < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "contactId is required",
			})
			return
		}

		relinked, err := h.recorder.Relink(c.Request.Context(), auditID, req.ContactID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to relink audit entry",
			})
			return
		}
		if !relinked {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No unlinked audit entry with that id",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "Audit entry relinked",
			"auditId":   auditID,
			"contactId": req.ContactID,
		})
	}
}
