package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/khata-api/internal/services"
)

type JobHandler struct {
	jobService  *services.JobService
	saleService *services.SaleService
}

func NewJobHandler(jobSvc *services.JobService, saleSvc *services.SaleService) *JobHandler {
	return &JobHandler{
		jobService:  jobSvc,
		saleService: saleSvc,
	}
}

// Status returns the current worker status and unfinished sale rollbacks
// @Summary Get background job status
// @Description Worker statistics (active, completed, failed, queue length) and saga counts by state
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /jobs/status [get]
func (h *JobHandler) Status(c *gin.Context) {
	status := h.jobService.GetStatus()

	sagas, err := h.saleService.SagaCounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	status["sagas"] = sagas
	c.JSON(http.StatusOK, status)
}

// ShowSaga returns one sale saga with its step log
// @Summary Get sale saga
// @Description The steps a sale took and which of them were compensated
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Param saga_id path int true "Saga ID"
// @Success 200 {object} models.SaleSaga
// @Router /sagas/{saga_id} [get]
func (h *JobHandler) ShowSaga(c *gin.Context) {
	id, ok := parseID(c, "saga_id")
	if !ok {
		return
	}
	saga, err := h.saleService.GetSaga(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saga)
}
