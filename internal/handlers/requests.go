package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mhalloran/curbshare/internal/middleware"
	"github.com/mhalloran/curbshare/internal/models"
	"github.com/mhalloran/curbshare/internal/services"
	appErrors "github.com/mhalloran/curbshare/pkg/errors"
	"github.com/mhalloran/curbshare/pkg/response"
)

type RequestHandler struct {
	requests *services.RequestService
	now      func() time.Time
}

func NewRequestHandler(requests *services.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests, now: time.Now}
}

type createRequestRequest struct {
	GroupID         string `json:"group_id" validate:"required,uuid4"`
	ItemDescription string `json:"item_description" validate:"required,min=3,max=500"`
	StorePreference string `json:"store_preference" validate:"omitempty,max=200"`
	PickupNotes     string `json:"pickup_notes" validate:"omitempty,max=500"`
	NeededBy        string `json:"needed_by" validate:"required"`
}

// requestDTO decorates the stored request with the derived expired flag.
type requestDTO struct {
	*models.Request
	Expired bool `json:"expired"`
}

func (h *RequestHandler) toDTO(request *models.Request) requestDTO {
	return requestDTO{Request: request, Expired: request.Expired(h.now())}
}

func (h *RequestHandler) toDTOs(requests []models.Request) []requestDTO {
	now := h.now()
	items := make([]requestDTO, 0, len(requests))
	for i := range requests {
		items = append(items, requestDTO{Request: &requests[i], Expired: requests[i].Expired(now)})
	}
	return items
}

// POST /api/requests
func (h *RequestHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createRequestRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.requests.Create(requestContext(c), services.CreateRequestInput{
		GroupID:         req.GroupID,
		OwnerID:         userID,
		ItemDescription: req.ItemDescription,
		StorePreference: req.StorePreference,
		PickupNotes:     req.PickupNotes,
		NeededBy:        req.NeededBy,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, h.toDTO(request))
}

// GET /api/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	requestID := strings.TrimSpace(c.Param("id"))
	if requestID == "" {
		response.Error(c, appErrors.NewBadRequest("request id is required"))
		return
	}

	request, err := h.requests.GetByID(requestContext(c), requestID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.toDTO(request))
}

// GET /api/groups/:id/requests
func (h *RequestHandler) ListByGroup(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	groupID := strings.TrimSpace(c.Param("id"))
	if groupID == "" {
		response.Error(c, appErrors.NewBadRequest("group id is required"))
		return
	}

	requests, err := h.requests.ListByGroup(requestContext(c), groupID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"requests": h.toDTOs(requests)})
}

// GET /api/requests
func (h *RequestHandler) ListMine(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	requests, err := h.requests.ListMine(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"requests": h.toDTOs(requests)})
}

// POST /api/requests/:id/claim
func (h *RequestHandler) Claim(c *gin.Context) {
	h.transition(c, h.requests.Claim)
}

// POST /api/requests/:id/unclaim
func (h *RequestHandler) Unclaim(c *gin.Context) {
	h.transition(c, h.requests.Unclaim)
}

// POST /api/requests/:id/fulfill
func (h *RequestHandler) Fulfill(c *gin.Context) {
	h.transition(c, h.requests.Fulfill)
}

// DELETE /api/requests/:id
func (h *RequestHandler) Delete(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	requestID := strings.TrimSpace(c.Param("id"))
	if requestID == "" {
		response.Error(c, appErrors.NewBadRequest("request id is required"))
		return
	}

	if err := h.requests.Delete(requestContext(c), requestID, userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *RequestHandler) transition(
	c *gin.Context,
	op func(ctx context.Context, requestID, userID string) (*models.Request, error),
) {
	userID := c.GetString(middleware.CtxUserIDKey)
	requestID := strings.TrimSpace(c.Param("id"))
	if requestID == "" {
		response.Error(c, appErrors.NewBadRequest("request id is required"))
		return
	}

	request, err := op(requestContext(c), requestID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.toDTO(request))
}
