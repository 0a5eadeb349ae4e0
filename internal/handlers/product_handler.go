package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/khata-api/internal/services"
)

type ProductHandler struct {
	productService *services.ProductService
}

func NewProductHandler(productService *services.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// @Summary List Products
// @Tags Products
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(50)
// @Param search_term query string false "Name or SKU"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /products [get]
func (h *ProductHandler) Index(c *gin.Context) {
	query := parseListQuery(c, 50)

	products, total, err := h.productService.ListProducts(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "pagination": pagination(query, total)})
}

// @Summary Create Product
// @Tags Products
// @Accept json
// @Produce json
// @Param request body services.ProductInput true "Product Data"
// @Success 201 {object} models.Product
// @Security BearerAuth
// @Router /products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	var input services.ProductInput
	if err := BindNestedOrFlat(c, "product", &input); err != nil {
		bindError(c, err)
		return
	}

	product, err := h.productService.CreateProduct(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}
