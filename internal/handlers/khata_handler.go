package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/internal/services"
)

type KhataHandler struct {
	ledgerService *services.LedgerService
}

func NewKhataHandler(ledgerService *services.LedgerService) *KhataHandler {
	return &KhataHandler{ledgerService: ledgerService}
}

// @Summary List Khatas
// @Description Get a paginated list of khatas, optionally filtered by customer or status
// @Tags Khatas
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param customer_id query int false "Customer ID"
// @Param status query string false "open or closed"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /khatas [get]
func (h *KhataHandler) Index(c *gin.Context) {
	listQuery := parseListQuery(c, 20)
	query := &repository.KhataQuery{
		ListQuery:  listQuery,
		CustomerID: queryUint(c, "customer_id"),
		Status:     c.Query("status"),
	}

	khatas, total, err := h.ledgerService.ListKhatas(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"khatas": khatas, "pagination": pagination(listQuery, total)})
}

// @Summary Get Khata
// @Description Get a khata with its customer and installment schedule
// @Tags Khatas
// @Produce json
// @Param khata_id path int true "Khata ID"
// @Success 200 {object} models.Khata
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /khatas/{khata_id} [get]
func (h *KhataHandler) Show(c *gin.Context) {
	id, ok := parseID(c, "khata_id")
	if !ok {
		return
	}
	khata, err := h.ledgerService.GetKhata(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"khata": khata})
}

// @Summary Create Khata
// @Description Open a khata. A positive total is recorded as the opening charge.
// @Tags Khatas
// @Accept json
// @Produce json
// @Param request body services.CreateKhataInput true "Khata Data"
// @Success 201 {object} services.LedgerResult
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /khatas [post]
func (h *KhataHandler) Create(c *gin.Context) {
	var input services.CreateKhataInput
	if err := BindNestedOrFlat(c, "khata", &input); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.ledgerService.CreateKhata(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// @Summary List Khata Transactions
// @Description Ledger entries of a khata, newest first
// @Tags Khatas
// @Produce json
// @Param khata_id path int true "Khata ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /khatas/{khata_id}/transactions [get]
func (h *KhataHandler) Transactions(c *gin.Context) {
	id, ok := parseID(c, "khata_id")
	if !ok {
		return
	}
	entries, err := h.ledgerService.ListTransactions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}

// @Summary Add Charge
// @Description Record an amount the customer owes
// @Tags Khatas
// @Accept json
// @Produce json
// @Param khata_id path int true "Khata ID"
// @Param request body services.EntryInput true "Charge"
// @Success 201 {object} services.LedgerResult
// @Security BearerAuth
// @Router /khatas/{khata_id}/charges [post]
func (h *KhataHandler) AddCharge(c *gin.Context) {
	h.addEntry(c, h.ledgerService.AddCharge)
}

// @Summary Add Payment
// @Description Record a repayment
// @Tags Khatas
// @Accept json
// @Produce json
// @Param khata_id path int true "Khata ID"
// @Param request body services.EntryInput true "Payment"
// @Success 201 {object} services.LedgerResult
// @Security BearerAuth
// @Router /khatas/{khata_id}/payments [post]
func (h *KhataHandler) AddPayment(c *gin.Context) {
	h.addEntry(c, h.ledgerService.AddPayment)
}

type entryWriter func(ctx context.Context, khataID uint, input services.EntryInput) (*services.LedgerResult, error)

func (h *KhataHandler) addEntry(c *gin.Context, write entryWriter) {
	id, ok := parseID(c, "khata_id")
	if !ok {
		return
	}
	var input services.EntryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	result, err := write(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type addInstallmentsRequest struct {
	Installments []services.InstallmentInput `json:"installments"`
}

// @Summary Add Installments
// @Description Schedule repayments. The outstanding balance is unchanged.
// @Tags Khatas
// @Accept json
// @Produce json
// @Param khata_id path int true "Khata ID"
// @Param request body addInstallmentsRequest true "Installments"
// @Success 201 {object} map[string]interface{}
// @Security BearerAuth
// @Router /khatas/{khata_id}/installments [post]
func (h *KhataHandler) AddInstallments(c *gin.Context) {
	id, ok := parseID(c, "khata_id")
	if !ok {
		return
	}
	var req addInstallmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	installments, err := h.ledgerService.AddInstallments(c.Request.Context(), id, req.Installments)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"installments": installments})
}

type InstallmentHandler struct {
	ledgerService *services.LedgerService
}

func NewInstallmentHandler(ledgerService *services.LedgerService) *InstallmentHandler {
	return &InstallmentHandler{ledgerService: ledgerService}
}

// @Summary Pay Installment
// @Description Record a payment against one installment and the khata balance
// @Tags Installments
// @Accept json
// @Produce json
// @Param installment_id path int true "Installment ID"
// @Param request body services.EntryInput true "Payment"
// @Success 201 {object} services.LedgerResult
// @Security BearerAuth
// @Router /installments/{installment_id}/pay [post]
func (h *InstallmentHandler) Pay(c *gin.Context) {
	id, ok := parseID(c, "installment_id")
	if !ok {
		return
	}
	var input services.EntryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.ledgerService.PayInstallment(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// @Summary Overdue Installments
// @Description Installments past their due date that are not fully paid
// @Tags Installments
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /installments/overdue [get]
func (h *InstallmentHandler) Overdue(c *gin.Context) {
	installments, err := h.ledgerService.ListOverdueInstallments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	outstanding := decimal.Zero
	for i := range installments {
		outstanding = outstanding.Add(installments[i].Outstanding())
	}
	c.JSON(http.StatusOK, gin.H{"installments": installments, "count": len(installments), "outstanding": outstanding})
}

type TransactionHandler struct {
	ledgerService *services.LedgerService
	saleService   *services.SaleService
}

func NewTransactionHandler(ledgerService *services.LedgerService, saleService *services.SaleService) *TransactionHandler {
	return &TransactionHandler{ledgerService: ledgerService, saleService: saleService}
}

// @Summary Get Transaction
// @Description A ledger entry and the sale that produced it, when there is one
// @Tags Transactions
// @Produce json
// @Param transaction_id path int true "Transaction ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /transactions/{transaction_id} [get]
func (h *TransactionHandler) Show(c *gin.Context) {
	id, ok := parseID(c, "transaction_id")
	if !ok {
		return
	}
	entry, err := h.ledgerService.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{"transaction": entry, "sale": nil}
	sale, err := h.saleService.TransactionSale(c.Request.Context(), entry)
	switch {
	case err == nil:
		body["sale"] = sale
	case !errors.Is(err, services.ErrNotFound):
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// @Summary Delete Transaction
// @Description Reverse a ledger entry. Reversing a charge may leave a negative balance.
// @Tags Transactions
// @Produce json
// @Param transaction_id path int true "Transaction ID"
// @Success 200 {object} services.LedgerResult
// @Security BearerAuth
// @Router /transactions/{transaction_id} [delete]
func (h *TransactionHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "transaction_id")
	if !ok {
		return
	}
	result, err := h.ledgerService.DeleteTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
