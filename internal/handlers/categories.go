package handlers

import (
	"errors"
	"net/http"
	"strings"

	"spendbook/internal/models"
	"spendbook/internal/storage"
)

// CategoriesViewModel is the data passed to the categories template.
type CategoriesViewModel struct {
	User       *models.User
	Flash      *Flash
	Categories []models.Category
}

// Categories renders the category management page. Admin only.
func (h *Handlers) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "categories.html", CategoriesViewModel{
		User:       CurrentUser(r),
		Flash:      h.popFlash(w, r),
		Categories: categories,
	})
}

// CreateCategory adds a new category. A duplicate name is a recoverable,
// user-visible condition.
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.setFlash(w, FlashWarning, "Category name is required.")
		http.Redirect(w, r, "/categories", http.StatusFound)
		return
	}

	if _, err := h.db.CreateCategory(r.Context(), name); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			h.setFlash(w, FlashWarning, "That category already exists.")
			http.Redirect(w, r, "/categories", http.StatusFound)
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.setFlash(w, FlashSuccess, "Category added.")
	http.Redirect(w, r, "/categories", http.StatusFound)
}
