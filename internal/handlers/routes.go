package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sjperalta/khata-api/internal/middleware"
)

// RegisterRoutes mounts the API on v1. syncLimit guards the replica endpoints and may be nil.
func (h *Handlers) RegisterRoutes(v1 *gin.RouterGroup, jwtSecret string, syncLimit gin.HandlerFunc) {
	// Health check (public)
	v1.GET("/health", h.Health.Check)

	// Protected routes, every query below is scoped to the token's owner
	protected := v1.Group("")
	protected.Use(middleware.Auth(jwtSecret))
	{
		customers := protected.Group("/customers")
		{
			customers.GET("", h.Customer.Index)
			customers.POST("", h.Customer.Create)
			customers.GET("/:customer_id", h.Customer.Show)
			customers.PUT("/:customer_id", h.Customer.Update)
		}

		protected.GET("/products", h.Product.Index)
		protected.POST("/products", h.Product.Create)

		khatas := protected.Group("/khatas")
		{
			khatas.GET("", h.Khata.Index)
			khatas.POST("", h.Khata.Create)
			khatas.GET("/:khata_id", h.Khata.Show)
			khatas.GET("/:khata_id/transactions", h.Khata.Transactions)
			khatas.POST("/:khata_id/charges", h.Khata.AddCharge)
			khatas.POST("/:khata_id/payments", h.Khata.AddPayment)
			khatas.POST("/:khata_id/installments", h.Khata.AddInstallments)
		}

		// Static route first so "overdue" is not matched as :installment_id
		protected.GET("/installments/overdue", h.Installment.Overdue)
		protected.POST("/installments/:installment_id/pay", h.Installment.Pay)

		protected.GET("/transactions/:transaction_id", h.Transaction.Show)
		protected.DELETE("/transactions/:transaction_id", h.Transaction.Delete)

		// Terminal pushes and pulls are rate limited per owner
		limited := func(handler gin.HandlerFunc) []gin.HandlerFunc {
			if syncLimit == nil {
				return []gin.HandlerFunc{handler}
			}
			return []gin.HandlerFunc{syncLimit, handler}
		}

		sales := protected.Group("/sales")
		{
			sales.GET("", h.Sale.Index)
			sales.POST("", limited(h.Sale.Create)...)
			sales.GET("/:sale_id", h.Sale.Show)
			sales.POST("/:sale_id/refund", h.Sale.Refund)
			sales.DELETE("/:sale_id", h.Sale.Delete)
		}

		protected.GET("/sync/snapshot", limited(h.Sync.Snapshot)...)

		admin := protected.Group("")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/audits", h.Audit.Index)
			admin.GET("/jobs/status", h.Job.Status)
			admin.GET("/sagas/:saga_id", h.Job.ShowSaga)
		}
	}
}
