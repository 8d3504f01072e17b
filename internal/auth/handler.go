package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/internal/view"
)

// OAuthProviders lists the providers offered on the sign-in page.
var OAuthProviders = []string{"google", "linkedin_oidc"}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	guard          *Guard
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	publicURL      string
}

// NewHandler constructs a Handler instance. publicURL is the externally
// visible origin used for OAuth and email redirects.
func NewHandler(logger *slog.Logger, service *Service, guard *Guard, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, publicURL string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		guard:          guard,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		publicURL:      strings.TrimRight(publicURL, "/"),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/auth", h.showAuth)
	r.Post("/auth/signin", h.handleSignIn)
	r.Post("/auth/signup", h.handleSignUp)
	r.Get("/auth/oauth/{provider}", h.startOAuth)
	r.Get("/auth/callback", h.handleCallback)
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/forgot-password", h.showForgot)
	r.Post("/forgot-password", h.handleForgot)
	r.Get("/access-limited", h.showLimited)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Get("/reset-password", h.showReset)
		r.Post("/reset-password", h.handleReset)
		r.Get("/waiting-approval", h.showWaiting)
	})
}

type signInForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

type signUpForm struct {
	Name     string `validate:"required,max=120"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type emailForm struct {
	Email string `validate:"required,email"`
}

type resetForm struct {
	Password string `validate:"required,min=8"`
	Confirm  string `validate:"required,eqfield=Password"`
}

type authPageData struct {
	Mode      string
	SignIn    signInForm
	SignUp    signUpForm
	Providers []string
	Errors    map[string]string
}

func (h *Handler) showAuth(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.User() != "" {
		http.Redirect(w, r, PathHome, http.StatusSeeOther)
		return
	}
	mode := "signin"
	if r.URL.Query().Get("mode") == "signup" {
		mode = "signup"
	}
	h.render(w, r, "pages/auth/index.html", "Sign in", authPageData{Mode: mode, Providers: OAuthProviders, Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := signInForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	errs := h.validate(form)
	if len(errs) == 0 {
		login, err := h.service.SignIn(r.Context(), form.Email, form.Password)
		if err == nil {
			h.finishLogin(w, r, login, "Welcome back")
			return
		}
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("sign in failed", slog.Any("error", err))
		}
		errs["general"] = shared.UserSafeMessage(err)
	}
	form.Password = ""
	h.render(w, r, "pages/auth/index.html", "Sign in", authPageData{Mode: "signin", SignIn: form, Providers: OAuthProviders, Errors: errs}, http.StatusBadRequest)
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := signUpForm{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	errs := h.validate(form)
	if len(errs) == 0 {
		login, err := h.service.SignUp(r.Context(), form.Name, form.Email, form.Password, h.publicURL+PathAuth)
		switch {
		case err == nil:
			h.finishLogin(w, r, login, "Your account was created")
			return
		case errors.Is(err, ErrConfirmationPending):
			h.redirectWithFlash(w, r, PathAuth, "success", "Check your inbox to confirm your email address.")
			return
		default:
			h.logger.Warn("sign up failed", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
		}
	}
	form.Password = ""
	h.render(w, r, "pages/auth/index.html", "Create account", authPageData{Mode: "signup", SignUp: form, Providers: OAuthProviders, Errors: errs}, http.StatusBadRequest)
}

func (h *Handler) startOAuth(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !knownProvider(provider) {
		http.NotFound(w, r)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	target, verifier, err := h.service.AuthorizeURL(provider, h.publicURL+"/auth/callback")
	if err != nil {
		h.logger.Error("start oauth", slog.Any("error", err))
		h.redirectWithFlash(w, r, PathAuth, "error", "Could not start sign-in. Please try again.")
		return
	}
	sess.Set(sessionVerifier, verifier)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Redirect(w, r, PathAuth, http.StatusSeeOther)
		return
	}
	if desc := r.URL.Query().Get("error_description"); desc != "" {
		h.redirectWithFlash(w, r, PathAuth, "error", desc)
		return
	}
	verifier := sess.Get(sessionVerifier)
	sess.Delete(sessionVerifier)
	login, err := h.service.Callback(r.Context(), r.URL.Query().Get("code"), verifier)
	if err != nil {
		h.logger.Warn("auth callback failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, PathAuth, "error", "Sign-in link is invalid or was opened in another browser.")
		return
	}
	StoreLogin(sess, login, time.Now())
	if next := r.URL.Query().Get("next"); isLocalPath(next) {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, Destination(login.Account), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.service.SignOut(r.Context(), sess.Get(sessionAccessToken))
		ClearLogin(sess)
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) showForgot(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth/forgot.html", "Reset password", map[string]any{"Errors": map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := emailForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	if errs := h.validate(form); len(errs) > 0 {
		h.render(w, r, "pages/auth/forgot.html", "Reset password", map[string]any{"Form": form, "Errors": errs}, http.StatusBadRequest)
		return
	}
	verifier, err := h.service.Recover(r.Context(), form.Email, h.publicURL+"/auth/callback?next=/reset-password")
	if err != nil {
		h.logger.Error("password recovery failed", slog.Any("error", err))
		h.render(w, r, "pages/auth/forgot.html", "Reset password", map[string]any{"Form": form, "Errors": map[string]string{"general": shared.UserSafeMessage(err)}}, http.StatusBadGateway)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Set(sessionVerifier, verifier)
	}
	h.redirectWithFlash(w, r, PathAuth, "success", "If an account exists for that email, a reset link is on its way.")
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth/reset.html", "Choose a new password", map[string]any{"Errors": map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := resetForm{Password: r.PostFormValue("password"), Confirm: r.PostFormValue("confirm")}
	errs := h.validate(form)
	if len(errs) == 0 {
		p, _ := PrincipalFromContext(r.Context())
		if err := h.service.ResetPassword(r.Context(), p.Token, form.Password); err != nil {
			h.logger.Warn("reset password failed", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
		} else {
			h.redirectWithFlash(w, r, PathHome, "success", "Your password was updated.")
			return
		}
	}
	h.render(w, r, "pages/auth/reset.html", "Choose a new password", map[string]any{"Errors": errs}, http.StatusBadRequest)
}

func (h *Handler) showWaiting(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	if p.Approved() {
		http.Redirect(w, r, PathHome, http.StatusSeeOther)
		return
	}
	if p.limited() {
		http.Redirect(w, r, PathAccessLimited, http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/auth/waiting.html", "Waiting for approval", map[string]any{"Email": p.Email}, http.StatusOK)
}

func (h *Handler) showLimited(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth/limited.html", "Access limited", nil, http.StatusOK)
}

func (h *Handler) finishLogin(w http.ResponseWriter, r *http.Request, login Login, greeting string) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	StoreLogin(sess, login, time.Now())
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: greeting})
	http.Redirect(w, r, Destination(login.Account), http.StatusSeeOther)
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Must be at least " + fe.Param() + " characters."
	case "eqfield":
		return "Passwords do not match."
	}
	return "Invalid value."
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: ViewUser(r.Context()), Data: data}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func knownProvider(p string) bool {
	for _, known := range OAuthProviders {
		if p == known {
			return true
		}
	}
	return false
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}
