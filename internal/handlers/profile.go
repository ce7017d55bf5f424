package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/middleware"
	"github.com/charlesng35/multiguard/internal/services"
	"github.com/charlesng35/multiguard/pkg/response"
)

// ProfileHandler exposes self-service account management for one guard.
type ProfileHandler struct {
	svc      *auth.GuardServices
	accounts *services.AccountService
}

// NewProfileHandler configures a profile handler with required services.
func NewProfileHandler(svc *auth.GuardServices, accounts *services.AccountService) *ProfileHandler {
	return &ProfileHandler{svc: svc, accounts: accounts}
}

type updateProfileRequest struct {
	Name  string `json:"name" form:"name" validate:"required,max=255"`
	Email string `json:"email" form:"email" validate:"required,email,max=255"`
}

type passwordChangeRequest struct {
	CurrentPassword      string `json:"current_password" form:"current_password" validate:"required"`
	Password             string `json:"password" form:"password" validate:"required,min=8,password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation" validate:"required,eqfield=Password"`
}

type deleteAccountRequest struct {
	Password string `json:"password" form:"password" validate:"required"`
}

func (h *ProfileHandler) back() string { return h.svc.Guard.Path("/profile") }

// Show renders the profile page.
func (h *ProfileHandler) Show(c *gin.Context) {
	principal, ok := requirePrincipal(c, h.svc.Guard.Name)
	if !ok {
		return
	}
	view(c, string(h.svc.Guard.Name)+".profile", principal)
}

// Update modifies the authenticated principal's name and email.
func (h *ProfileHandler) Update(c *gin.Context) {
	var body updateProfileRequest
	if !bindAndValidate(c, &body, h.back()) {
		return
	}
	principal, ok := requirePrincipal(c, h.svc.Guard.Name)
	if !ok {
		return
	}

	updated, err := h.accounts.UpdateProfile(requestContext(c), h.svc.Guard.Name, principal.ID, services.ProfileInput{
		Name:  body.Name,
		Email: body.Email,
	})
	if err != nil {
		fail(c, h.back(), err)
		return
	}

	if middleware.ExpectsJSON(c) {
		response.Success(c, http.StatusOK, ResultPayload{Status: services.StatusProfileUpdated, Data: updated})
		return
	}
	succeed(c, h.back(), services.StatusProfileUpdated)
}

// UpdatePassword replaces the password after checking the current one.
func (h *ProfileHandler) UpdatePassword(c *gin.Context) {
	var body passwordChangeRequest
	if !bindAndValidate(c, &body, h.back()) {
		return
	}
	principal, ok := requirePrincipal(c, h.svc.Guard.Name)
	if !ok {
		return
	}

	if err := h.accounts.UpdatePassword(requestContext(c), h.svc.Guard.Name, principal, body.CurrentPassword, body.Password); err != nil {
		fail(c, h.back(), err)
		return
	}
	succeed(c, h.back(), services.StatusPasswordUpdated)
}

// Destroy deletes the account after a password check and signs it out.
func (h *ProfileHandler) Destroy(c *gin.Context) {
	var body deleteAccountRequest
	if !bindAndValidate(c, &body, h.back()) {
		return
	}
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	principal, ok := requirePrincipal(c, h.svc.Guard.Name)
	if !ok {
		return
	}

	if err := h.accounts.DeleteAccount(requestContext(c), h.svc.Guard.Name, sess, principal, body.Password); err != nil {
		fail(c, h.back(), err)
		return
	}
	succeed(c, "/", "")
}
