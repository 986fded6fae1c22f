package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mhalloran/curbshare/internal/middleware"
	"github.com/mhalloran/curbshare/internal/services"
	appErrors "github.com/mhalloran/curbshare/pkg/errors"
	"github.com/mhalloran/curbshare/pkg/response"
)

type GroupHandler struct {
	groups *services.GroupService
}

func NewGroupHandler(groups *services.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

type createGroupRequest struct {
	Name string `json:"name" validate:"required,min=2,max=128"`
}

// POST /api/groups
func (h *GroupHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createGroupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	group, err := h.groups.Create(requestContext(c), services.CreateGroupInput{
		Name:    req.Name,
		OwnerID: userID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, group)
}

// GET /api/groups
func (h *GroupHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	groups, err := h.groups.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"groups": groups})
}

// GET /api/groups/:id
func (h *GroupHandler) Get(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	groupID := strings.TrimSpace(c.Param("id"))
	if groupID == "" {
		response.Error(c, appErrors.NewBadRequest("group id is required"))
		return
	}

	group, err := h.groups.GetByID(requestContext(c), groupID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, group)
}

// GET /api/groups/:id/members
func (h *GroupHandler) ListMembers(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	groupID := strings.TrimSpace(c.Param("id"))
	if groupID == "" {
		response.Error(c, appErrors.NewBadRequest("group id is required"))
		return
	}

	members, err := h.groups.ListMembers(requestContext(c), groupID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"members": members})
}

// POST /api/groups/:id/leave
func (h *GroupHandler) Leave(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	groupID := strings.TrimSpace(c.Param("id"))
	if groupID == "" {
		response.Error(c, appErrors.NewBadRequest("group id is required"))
		return
	}

	if err := h.groups.Leave(requestContext(c), groupID, userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"left": true})
}

// DELETE /api/groups/:id/members/:userID
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	requesterID := c.GetString(middleware.CtxUserIDKey)
	groupID := strings.TrimSpace(c.Param("id"))
	targetID := strings.TrimSpace(c.Param("userID"))
	if groupID == "" || targetID == "" {
		response.Error(c, appErrors.NewBadRequest("group id and user id are required"))
		return
	}

	if err := h.groups.RemoveMember(requestContext(c), groupID, requesterID, targetID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
