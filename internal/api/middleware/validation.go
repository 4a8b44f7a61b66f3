package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/dropwire/dropwire/internal/api/constants"
	"github.com/dropwire/dropwire/internal/api/dto/common"
	tunneldto "github.com/dropwire/dropwire/internal/api/dto/v1/tunnel"
)

// ValidationMiddleware binds and validates request bodies ahead of the
// handler so handlers only ever see a validated struct.
type ValidationMiddleware struct {
	validator *validator.Validate
}

func NewValidationMiddleware() *ValidationMiddleware {
	return &ValidationMiddleware{validator: validator.New()}
}

// ValidateGenerateLinkRequest validates POST /generate-link's body.
func (m *ValidationMiddleware) ValidateGenerateLinkRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tunneldto.GenerateLinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, common.NewErrorResponse(common.ErrCodeValidation, "invalid request body", err.Error()))
			c.Abort()
			return
		}
		if err := m.validator.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, common.NewErrorResponse(common.ErrCodeValidation, "validation failed", err.Error()))
			c.Abort()
			return
		}
		c.Set(constants.ContextKeyGenerateLink, req)
		c.Next()
	}
}
