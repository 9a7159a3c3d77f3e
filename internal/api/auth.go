package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"liveclass/internal/apperr"
	"liveclass/internal/auth"
	"liveclass/internal/identity"
)

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	// Role, when set, is the role the sign-in form is for.
	Role string `json:"role" binding:"omitempty,oneof=student teacher admin"`
}

func (h *handler) signIn(c *gin.Context) {
	var req signInRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Identity.SignIn(c.Request.Context(), req.Email, req.Password, auth.Role(req.Role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.Identity.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role" binding:"omitempty,oneof=student teacher admin"`
}

func (r registerRequest) input(role auth.Role) identity.RegisterInput {
	return identity.RegisterInput{
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		AvatarURL: r.AvatarURL,
		Role:      role,
	}
}

// register is self sign-up, which only ever creates students.
func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Role != "" && auth.Role(req.Role) != auth.RoleStudent {
		respondError(c, apperr.ErrRoleMismatch)
		return
	}
	p, err := h.Identity.Register(c.Request.Context(), req.input(auth.RoleStudent))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// createUser lets an admin create a profile with any role.
func (h *handler) createUser(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	role := auth.Role(req.Role)
	if role == "" {
		role = auth.RoleStudent
	}
	p, err := h.Identity.Register(c.Request.Context(), req.input(role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handler) me(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	profile, err := h.Identity.Profile(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": p, "profile": profile})
}
