package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/internal/services"
)

type SaleHandler struct {
	saleService *services.SaleService
}

func NewSaleHandler(saleService *services.SaleService) *SaleHandler {
	return &SaleHandler{saleService: saleService}
}

// @Summary List Sales
// @Tags Sales
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param status query string false "completed, refunded or cancelled"
// @Param khata_id query int false "Khata ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /sales [get]
func (h *SaleHandler) Index(c *gin.Context) {
	listQuery := parseListQuery(c, 20)
	query := &repository.SaleQuery{
		ListQuery: listQuery,
		Status:    c.Query("status"),
		KhataID:   queryUint(c, "khata_id"),
	}

	sales, total, err := h.saleService.ListSales(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales, "pagination": pagination(listQuery, total)})
}

// @Summary Get Sale
// @Tags Sales
// @Produce json
// @Param sale_id path int true "Sale ID"
// @Success 200 {object} models.Sale
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /sales/{sale_id} [get]
func (h *SaleHandler) Show(c *gin.Context) {
	id, ok := parseID(c, "sale_id")
	if !ok {
		return
	}
	sale, err := h.saleService.GetSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// Create checks out a sale. A repeated client_ref returns the sale already recorded.
// @Summary Create Sale
// @Description Decrement stock, assign an invoice number and post khata entries
// @Tags Sales
// @Accept json
// @Produce json
// @Param request body services.CreateSaleInput true "Sale"
// @Success 201 {object} models.Sale
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Security BearerAuth
// @Router /sales [post]
func (h *SaleHandler) Create(c *gin.Context) {
	var input services.CreateSaleInput
	if err := BindNestedOrFlat(c, "sale", &input); err != nil {
		bindError(c, err)
		return
	}

	sale, err := h.saleService.CreateSale(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

// @Summary Refund Sale
// @Description Restock a completed sale. Ledger entries are left untouched.
// @Tags Sales
// @Produce json
// @Param sale_id path int true "Sale ID"
// @Success 200 {object} models.Sale
// @Failure 422 {object} map[string]string
// @Security BearerAuth
// @Router /sales/{sale_id}/refund [post]
func (h *SaleHandler) Refund(c *gin.Context) {
	id, ok := parseID(c, "sale_id")
	if !ok {
		return
	}
	sale, err := h.saleService.RefundSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// @Summary Delete Sale
// @Description Reverse the sale's ledger entries, restock unless refunded and remove it
// @Tags Sales
// @Produce json
// @Param sale_id path int true "Sale ID"
// @Success 200 {object} services.DeleteSaleResult
// @Security BearerAuth
// @Router /sales/{sale_id} [delete]
func (h *SaleHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "sale_id")
	if !ok {
		return
	}
	result, err := h.saleService.DeleteSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
