package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mhalloran/curbshare/internal/middleware"
	"github.com/mhalloran/curbshare/internal/services"
	appErrors "github.com/mhalloran/curbshare/pkg/errors"
	"github.com/mhalloran/curbshare/pkg/response"
)

type UsageHandler struct {
	limits *services.LimitService
}

func NewUsageHandler(limits *services.LimitService) *UsageHandler {
	return &UsageHandler{limits: limits}
}

// GET /api/usage
func (h *UsageHandler) Get(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	usage, err := h.limits.Usage(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, usage)
}
