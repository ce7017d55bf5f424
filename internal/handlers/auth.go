package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/middleware"
	"github.com/charlesng35/multiguard/internal/services"
	"github.com/charlesng35/multiguard/pkg/response"
)

// AuthHandler serves the login, registration, verification, confirmation and
// password reset endpoints of one guard.
type AuthHandler struct {
	svc      *auth.GuardServices
	accounts *services.AccountService
}

// NewAuthHandler binds the auth endpoints to a guard's services.
func NewAuthHandler(svc *auth.GuardServices, accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{svc: svc, accounts: accounts}
}

type loginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
	Remember bool   `json:"remember" form:"remember"`
}

type registerRequest struct {
	Name                 string `json:"name" form:"name" validate:"required,max=255"`
	Email                string `json:"email" form:"email" validate:"required,email,max=255"`
	Password             string `json:"password" form:"password" validate:"required,min=8,password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation" validate:"required,eqfield=Password"`
}

type confirmPasswordRequest struct {
	Password string `json:"password" form:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token                string `json:"token" form:"token" validate:"required"`
	Email                string `json:"email" form:"email" validate:"required,email"`
	Password             string `json:"password" form:"password" validate:"required,min=8,password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation" validate:"required,eqfield=Password"`
}

func (h *AuthHandler) viewName(page string) string {
	return string(h.svc.Guard.Name) + "." + page
}

// ShowLogin renders the login page.
func (h *AuthHandler) ShowLogin(c *gin.Context) {
	view(c, h.viewName("login"), nil)
}

// Login authenticates the submitted credentials and sends the principal to
// the page they originally asked for.
func (h *AuthHandler) Login(c *gin.Context) {
	back := h.svc.Guard.Path("/login")
	var body loginRequest
	if !bindAndValidate(c, &body, back) {
		return
	}
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	_, err := h.svc.Login.Login(requestContext(c), sess, auth.Credentials{
		Email:    body.Email,
		Password: body.Password,
		Remember: body.Remember,
	})
	if err != nil {
		fail(c, back, err)
		return
	}

	succeed(c, auth.Intended(sess, h.svc.Guard.HomePath), "")
}

// Logout ends the guard's session. Other guards signed in on the same
// session stay signed in.
func (h *AuthHandler) Logout(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	if err := h.svc.Session.Logout(requestContext(c), sess); err != nil {
		response.Error(c, err)
		return
	}
	succeed(c, "/", "")
}

// ShowRegister renders the registration page.
func (h *AuthHandler) ShowRegister(c *gin.Context) {
	view(c, h.viewName("register"), nil)
}

// Register creates a principal and signs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	back := h.svc.Guard.Path("/register")
	var body registerRequest
	if !bindAndValidate(c, &body, back) {
		return
	}
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	principal, err := h.accounts.Register(requestContext(c), h.svc.Guard.Name, sess, services.RegisterInput{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		fail(c, back, err)
		return
	}

	if middleware.ExpectsJSON(c) {
		response.Success(c, http.StatusCreated, ResultPayload{Redirect: h.svc.Guard.HomePath, Data: principal})
		return
	}
	succeed(c, h.svc.Guard.HomePath, "")
}

// VerificationNotice shows the verify-email prompt, or sends verified
// principals on their way.
func (h *AuthHandler) VerificationNotice(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	principal, ok := requirePrincipal(c, h.svc.Guard.Name)
	if !ok {
		return
	}
	render(c, h.svc.Verification.Show(sess, principal), "")
}

// VerifyEmail redeems a signed verification link for the signed-in principal.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	principal, ok := requirePrincipal(c, h.svc.Guard.Name)
	if !ok {
		return
	}

	link := auth.ParseLink(auth.PurposeEmailVerification, h.svc.Guard.Name, c.Param("id"), c.Param("hash"), c.Request.URL.Query())
	outcome, err := h.svc.Verification.Verify(requestContext(c), sess, principal, link)
	if err != nil {
		response.Error(c, err)
		return
	}
	render(c, outcome, "")
}

// ResendVerification mails a fresh verification link.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	principal, ok := requirePrincipal(c, h.svc.Guard.Name)
	if !ok {
		return
	}
	outcome, err := h.svc.Verification.Resend(requestContext(c), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	render(c, outcome, h.svc.Guard.Path("/verify-email"))
}

// ShowConfirmPassword renders the password confirmation page.
func (h *AuthHandler) ShowConfirmPassword(c *gin.Context) {
	view(c, h.viewName("confirm-password"), nil)
}

// ConfirmPassword records a fresh password confirmation for the guard.
func (h *AuthHandler) ConfirmPassword(c *gin.Context) {
	back := h.svc.Guard.Path("/confirm-password")
	var body confirmPasswordRequest
	if !bindAndValidate(c, &body, back) {
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

	if err := h.svc.Confirmation.Confirm(requestContext(c), sess, principal, body.Password); err != nil {
		fail(c, back, err)
		return
	}
	succeed(c, auth.Intended(sess, h.svc.Guard.HomePath), "")
}

// ShowForgotPassword renders the reset link request page.
func (h *AuthHandler) ShowForgotPassword(c *gin.Context) {
	view(c, h.viewName("forgot-password"), nil)
}

// ForgotPassword sends a reset link. Unknown emails get the same answer.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	back := h.svc.Guard.Path("/forgot-password")
	var body forgotPasswordRequest
	if !bindAndValidate(c, &body, back) {
		return
	}

	status, err := h.svc.Passwords.SendResetLink(requestContext(c), body.Email)
	if err != nil {
		fail(c, back, err)
		return
	}
	succeed(c, back, status)
}

// ShowResetPassword renders the new password form for a reset token.
func (h *AuthHandler) ShowResetPassword(c *gin.Context) {
	view(c, h.viewName("reset-password"), gin.H{
		"token": c.Param("token"),
		"email": c.Query("email"),
	})
}

// ResetPassword redeems a reset token and sends the principal to log in.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	back := h.svc.Guard.Path("/forgot-password")
	var body resetPasswordRequest
	if !bindAndValidate(c, &body, back) {
		return
	}

	_, err := h.svc.Passwords.Reset(requestContext(c), auth.ResetRequest{
		Token:    body.Token,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		fail(c, back, err)
		return
	}
	succeed(c, h.svc.Guard.Path("/login"), auth.StatusPasswordReset)
}

// Dashboard is the guard's home page.
func (h *AuthHandler) Dashboard(c *gin.Context) {
	principal, ok := requirePrincipal(c, h.svc.Guard.Name)
	if !ok {
		return
	}
	view(c, h.viewName("dashboard"), principal)
}

// ConfirmedArea is a sample route behind password confirmation.
func (h *AuthHandler) ConfirmedArea(c *gin.Context) {
	if _, ok := requirePrincipal(c, h.svc.Guard.Name); !ok {
		return
	}
	view(c, h.viewName("protected"), nil)
}
