package handlers

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"spendbook/internal/auth"
	"spendbook/internal/models"
	"spendbook/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"

	flashCookieName = "flash"
)

// Flash levels. They only drive styling in templates.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// Flash is a one-shot notice carried across a redirect.
type Flash struct {
	Level   string
	Message string
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db           *storage.DB
	templateDir  string
	secureCookie bool
	logger       *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, templateDir string, secureCookie bool, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{db: db, templateDir: templateDir, secureCookie: secureCookie, logger: logger}
}

// CurrentUser retrieves the authenticated user from request context.
func CurrentUser(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// RequireAuth wraps handlers to require a valid session. On failure it
// redirects to the login page, preserving the intended destination.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			h.setFlash(w, FlashWarning, "Please log in to continue.")
			http.Redirect(w, r, loginURL(r), http.StatusFound)
			return
		}

		user, err := h.db.GetSessionUser(r.Context(), cookie.Value)
		if err != nil {
			// Unknown token; clear the cookie and start over.
			h.clearSessionCookie(w)
			h.setFlash(w, FlashWarning, "Please log in to continue.")
			http.Redirect(w, r, loginURL(r), http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin wraps handlers to require the administrator role. It must run
// inside RequireAuth. On failure it redirects to the listing page.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil || !user.IsAdmin() {
			h.setFlash(w, FlashDanger, "Admin access required.")
			http.Redirect(w, r, "/expenses", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loginURL builds the login redirect, carrying the intended destination.
// Only same-site paths are preserved.
func loginURL(r *http.Request) string {
	next := r.URL.Path
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(next)
}

// safeNext validates a user-supplied destination; anything off-site falls
// back to the listing page.
func safeNext(next string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		return next
	}
	return "/expenses"
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	User     *models.User
	Flash    *Flash
	Error    string
	Username string
	Next     string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, go straight to expenses.
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if _, err := h.db.GetSessionUser(r.Context(), cookie.Value); err == nil {
			http.Redirect(w, r, "/expenses", http.StatusFound)
			return
		}
	}
	h.render(w, r, "login.html", LoginViewModel{
		Flash: h.popFlash(w, r),
		Next:  r.URL.Query().Get("next"),
	})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "login.html", LoginViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	next := r.URL.Query().Get("next")

	if username == "" || password == "" {
		h.render(w, r, "login.html", LoginViewModel{
			Error: "Please enter both username and password.", Username: username, Next: next,
		})
		return
	}

	user, err := h.db.GetUserByCredentials(r.Context(), username, password)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.serverError(w, r, err)
			return
		}
		h.render(w, r, "login.html", LoginViewModel{
			Error: "Invalid login details.", Username: username, Next: next,
		})
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.db.CreateSession(r.Context(), token, user.ID); err != nil {
		h.serverError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.setFlash(w, FlashSuccess, "Logged in as "+user.Username+" ("+user.Role+").")
	if next != "" {
		http.Redirect(w, r, safeNext(next), http.StatusFound)
		return
	}
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

// Logout clears the session unconditionally.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.db.DeleteSession(r.Context(), cookie.Value); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	h.clearSessionCookie(w)
	h.setFlash(w, FlashInfo, "You have been logged out.")
	http.Redirect(w, r, "/login", http.StatusFound)
}

// RegisterViewModel holds data for the registration page.
type RegisterViewModel struct {
	User     *models.User
	Flash    *Flash
	Error    string
	Username string
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", RegisterViewModel{Flash: h.popFlash(w, r)})
}

// Register creates a new account. New accounts always get the ordinary role.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "register.html", RegisterViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := strings.TrimSpace(r.FormValue("password"))

	if username == "" || password == "" {
		h.render(w, r, "register.html", RegisterViewModel{
			Error: "Username and password are required.", Username: username,
		})
		return
	}

	if _, err := h.db.CreateUser(r.Context(), username, password, models.RoleUser); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			h.render(w, r, "register.html", RegisterViewModel{
				Error: "Username already exists.", Username: username,
			})
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.setFlash(w, FlashSuccess, "Account created successfully. Please log in.")
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// setFlash stores a one-shot notice; the next render consumes it.
func (h *Handlers) setFlash(w http.ResponseWriter, level, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(level + "|" + message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the pending notice, if any.
func (h *Handlers) popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookieName, Value: "", Path: "/", MaxAge: -1})

	decoded, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil
	}
	level, message, ok := strings.Cut(decoded, "|")
	if !ok {
		return &Flash{Level: FlashInfo, Message: decoded}
	}
	return &Flash{Level: level, Message: message}
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, err := template.ParseFiles(filepath.Join(h.templateDir, "base.html"), filepath.Join(h.templateDir, viewName))
	if err != nil {
		h.logger.Error("template parse", "view", viewName, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		h.logger.Error("template execute", "view", viewName, "error", err)
	}
}

// serverError terminates the request on an unclassified store-level failure.
func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
