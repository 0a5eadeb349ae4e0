package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health      *HealthHandler
	Customer    *CustomerHandler
	Product     *ProductHandler
	Khata       *KhataHandler
	Installment *InstallmentHandler
	Transaction *TransactionHandler
	Sale        *SaleHandler
	Sync        *SyncHandler
	Audit       *AuditHandler
	Job         *JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services) *Handlers {
	return &Handlers{
		Health:      NewHealthHandler(),
		Customer:    NewCustomerHandler(svcs.Customer),
		Product:     NewProductHandler(svcs.Product),
		Khata:       NewKhataHandler(svcs.Ledger),
		Installment: NewInstallmentHandler(svcs.Ledger),
		Transaction: NewTransactionHandler(svcs.Ledger, svcs.Sale),
		Sale:        NewSaleHandler(svcs.Sale),
		Sync:        NewSyncHandler(svcs.Sync),
		Audit:       NewAuditHandler(svcs.Audit),
		Job:         NewJobHandler(svcs.Job, svcs.Sale),
	}
}

type HealthHandler struct {
	startedAt time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now()}
}

// @Summary Health Check
// @Description Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// parseID reads a numeric path parameter, answering 400 when it is not one
func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param, "field": param})
		return 0, false
	}
	return uint(id), true
}

// parseListQuery reads page, per_page, search_term and sort ("field-direction")
func parseListQuery(c *gin.Context, defaultPerPage int) *repository.ListQuery {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PerPage < 1 || query.PerPage > 200 {
		query.PerPage = defaultPerPage
	}
	query.Search = strings.TrimSpace(c.Query("search_term"))

	if sort := c.Query("sort"); sort != "" {
		parts := strings.SplitN(sort, "-", 2)
		query.SortBy = parts[0]
		if len(parts) == 2 {
			query.SortDir = strings.ToLower(parts[1])
		}
	}
	return query
}

// queryUint reads an optional numeric filter, zero when absent or malformed
func queryUint(c *gin.Context, key string) uint {
	v, err := strconv.ParseUint(c.Query(key), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

func pagination(query *repository.ListQuery, total int64) gin.H {
	totalPages := 0
	if query.PerPage > 0 {
		totalPages = int((total + int64(query.PerPage) - 1) / int64(query.PerPage))
	}
	return gin.H{
		"page":        query.Page,
		"per_page":    query.PerPage,
		"total":       total,
		"total_pages": totalPages,
	}
}
