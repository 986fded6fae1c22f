package handlers

import (
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

type InviteHandler struct {
	invites *services.InviteService
}

func NewInviteHandler(invites *services.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

type createInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type acceptInviteRequest struct {
	Token string `json:"token" validate:"required"`
}

type inviteDTO struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Email     string    `json:"email"`
	InvitedBy string    `json:"invited_by"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	GroupName string    `json:"group_name,omitempty"`
}

type inviteCreatedResponse struct {
	Invite inviteDTO `json:"invite"`
	Token  string    `json:"token"`
}

func toInviteDTO(invite *models.Invite) inviteDTO {
	dto := inviteDTO{
		ID:        invite.ID,
		GroupID:   invite.GroupID,
		Email:     invite.Email,
		InvitedBy: invite.InvitedBy,
		CreatedAt: invite.CreatedAt,
		ExpiresAt: invite.ExpiresAt,
	}
	if invite.Group != nil {
		dto.GroupName = invite.Group.Name
	}
	return dto
}

// POST /api/groups/:id/invites
func (h *InviteHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	groupID := strings.TrimSpace(c.Param("id"))
	if groupID == "" {
		response.Error(c, appErrors.NewBadRequest("group id is required"))
		return
	}

	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invite, token, err := h.invites.Issue(requestContext(c), groupID, req.Email, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	// The raw token is shown exactly once; only its hash is stored.
	response.Success(c, http.StatusCreated, inviteCreatedResponse{
		Invite: toInviteDTO(invite),
		Token:  token,
	})
}

// GET /api/groups/:id/invites
func (h *InviteHandler) ListOpen(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	groupID := strings.TrimSpace(c.Param("id"))
	if groupID == "" {
		response.Error(c, appErrors.NewBadRequest("group id is required"))
		return
	}

	invites, err := h.invites.ListOpenByGroup(requestContext(c), groupID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]inviteDTO, 0, len(invites))
	for i := range invites {
		items = append(items, toInviteDTO(&invites[i]))
	}

	response.Success(c, http.StatusOK, gin.H{"invites": items})
}

// GET /api/invites/info?token=...
func (h *InviteHandler) Info(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.NewBadRequest("invite token is required"))
		return
	}

	invite, err := h.invites.Validate(requestContext(c), token)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, toInviteDTO(invite))
}

// POST /api/invites/accept
func (h *InviteHandler) Accept(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req acceptInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	group, err := h.invites.Accept(requestContext(c), req.Token, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"group": group})
}
