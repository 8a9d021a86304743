package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"spendbook/internal/models"
	"spendbook/internal/storage"
)

// ListFilters echoes the raw filter inputs back to the form.
type ListFilters struct {
	CategoryID string
	From       string
	To         string
	Essential  string
}

// CategoryTotal is a per-category subtotal, in first-seen order of the
// category in the result set.
type CategoryTotal struct {
	Category string
	Total    float64
}

// ListViewModel is the data passed to the expenses list template.
type ListViewModel struct {
	User           *models.User
	Flash          *Flash
	Rows           []models.ExpenseRow
	Categories     []models.Category
	Total          float64
	CategoryTotals []CategoryTotal
	Filters        ListFilters
}

// buildFilter turns untrusted query parameters into a typed filter. Malformed
// or empty parameters are ignored, never errors. Non-administrators are always
// scoped to their own user id, regardless of supplied parameters.
func buildFilter(r *http.Request, user *models.User) (storage.ExpenseFilter, ListFilters) {
	q := r.URL.Query()
	raw := ListFilters{
		CategoryID: strings.TrimSpace(q.Get("category_id")),
		From:       strings.TrimSpace(q.Get("from")),
		To:         strings.TrimSpace(q.Get("to")),
		Essential:  strings.TrimSpace(q.Get("essential")),
	}

	var f storage.ExpenseFilter
	if !user.IsAdmin() {
		id := user.ID
		f.UserID = &id
	}
	if id, err := strconv.ParseInt(raw.CategoryID, 10, 64); err == nil && id > 0 {
		f.CategoryID = &id
	}
	f.DateFrom = raw.From
	f.DateTo = raw.To
	switch raw.Essential {
	case "0":
		v := false
		f.Essential = &v
	case "1":
		v := true
		f.Essential = &v
	}
	return f, raw
}

// summarize computes the grand total and per-category subtotals over the
// filtered rows in a single pass.
func summarize(rows []models.ExpenseRow) (float64, []CategoryTotal) {
	var total float64
	index := make(map[string]int)
	var subtotals []CategoryTotal

	for _, row := range rows {
		total += row.Amount
		i, ok := index[row.CategoryName]
		if !ok {
			i = len(subtotals)
			index[row.CategoryName] = i
			subtotals = append(subtotals, CategoryTotal{Category: row.CategoryName})
		}
		subtotals[i].Total += row.Amount
	}
	return total, subtotals
}

// ListExpenses renders the filtered expense listing with totals.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)

	filter, raw := buildFilter(r, user)
	rows, err := h.db.ListExpenses(r.Context(), filter)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	total, subtotals := summarize(rows)

	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, "expenses.html", ListViewModel{
		User:           user,
		Flash:          h.popFlash(w, r),
		Rows:           rows,
		Categories:     categories,
		Total:          total,
		CategoryTotals: subtotals,
		Filters:        raw,
	})
}

// ExpenseForm carries the raw form fields, echoed back on validation failure.
// The essential flag is an explicit bool, true iff the checkbox marker was
// present in the submission.
type ExpenseForm struct {
	CategoryID  string
	Amount      string
	Description string
	ExpenseDate string
	IsEssential bool
}

// expenseInput is the validated command derived from an ExpenseForm.
type expenseInput struct {
	CategoryID  int64
	Amount      float64
	Description string
	ExpenseDate string
	IsEssential bool
}

func parseExpenseForm(r *http.Request) ExpenseForm {
	_ = r.ParseForm()
	return ExpenseForm{
		CategoryID:  strings.TrimSpace(r.FormValue("category_id")),
		Amount:      strings.TrimSpace(r.FormValue("amount")),
		Description: strings.TrimSpace(r.FormValue("description")),
		ExpenseDate: strings.TrimSpace(r.FormValue("expense_date")),
		IsEssential: r.Form.Has("is_essential"),
	}
}

// validate checks every rule and collects all violations instead of stopping
// at the first.
func (f ExpenseForm) validate() (expenseInput, []string) {
	var errs []string
	in := expenseInput{
		Description: f.Description,
		ExpenseDate: f.ExpenseDate,
		IsEssential: f.IsEssential,
	}

	if id, err := strconv.ParseInt(f.CategoryID, 10, 64); err != nil || id <= 0 {
		errs = append(errs, "Please select a valid category.")
	} else {
		in.CategoryID = id
	}

	if amount, err := strconv.ParseFloat(f.Amount, 64); err != nil {
		errs = append(errs, "Please enter a valid number for amount.")
	} else if amount <= 0 {
		errs = append(errs, "Amount must be greater than 0.")
	} else {
		in.Amount = amount
	}

	if f.Description == "" {
		errs = append(errs, "Description is required.")
	}
	if f.ExpenseDate == "" {
		errs = append(errs, "Date is required (YYYY-MM-DD).")
	}

	return in, errs
}

// FormViewModel is the data passed to the add/edit form template.
type FormViewModel struct {
	User       *models.User
	Flash      *Flash
	IsEdit     bool
	ExpenseID  int64
	Categories []models.Category
	Form       ExpenseForm
	Errors     []string
}

// AddExpenseForm renders the form to create a new expense.
func (h *Handlers) AddExpenseForm(w http.ResponseWriter, r *http.Request) {
	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "expense_form.html", FormViewModel{
		User:       CurrentUser(r),
		Flash:      h.popFlash(w, r),
		Categories: categories,
	})
}

// AddExpense validates and creates an expense owned by the current user.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)

	form := parseExpenseForm(r)
	in, errs := form.validate()
	if len(errs) > 0 {
		categories, err := h.db.ListCategories(r.Context())
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		h.render(w, r, "expense_form.html", FormViewModel{
			User:       user,
			Categories: categories,
			Form:       form,
			Errors:     errs,
		})
		return
	}

	expense := &models.Expense{
		UserID:      user.ID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Description: in.Description,
		ExpenseDate: in.ExpenseDate,
		IsEssential: in.IsEssential,
	}
	if err := h.db.CreateExpense(r.Context(), expense); err != nil {
		h.serverError(w, r, err)
		return
	}

	h.setFlash(w, FlashSuccess, "Expense added successfully.")
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

// loadOwnedExpense loads the target expense and enforces the owner-or-admin
// rule before anything is shown or changed. On failure it has already
// redirected with a notice.
func (h *Handlers) loadOwnedExpense(w http.ResponseWriter, r *http.Request, verb string) (*models.Expense, bool) {
	user := CurrentUser(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.setFlash(w, FlashDanger, "Expense not found.")
		http.Redirect(w, r, "/expenses", http.StatusFound)
		return nil, false
	}

	expense, err := h.db.GetExpense(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.setFlash(w, FlashDanger, "Expense not found.")
			http.Redirect(w, r, "/expenses", http.StatusFound)
			return nil, false
		}
		h.serverError(w, r, err)
		return nil, false
	}

	if !user.IsAdmin() && expense.UserID != user.ID {
		h.setFlash(w, FlashDanger, "You do not have permission to "+verb+" this item.")
		http.Redirect(w, r, "/expenses", http.StatusFound)
		return nil, false
	}
	return expense, true
}

// EditExpenseForm renders the edit form, pre-filled from the stored expense.
func (h *Handlers) EditExpenseForm(w http.ResponseWriter, r *http.Request) {
	expense, ok := h.loadOwnedExpense(w, r, "edit")
	if !ok {
		return
	}

	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, "expense_form.html", FormViewModel{
		User:       CurrentUser(r),
		Flash:      h.popFlash(w, r),
		IsEdit:     true,
		ExpenseID:  expense.ID,
		Categories: categories,
		Form: ExpenseForm{
			CategoryID:  strconv.FormatInt(expense.CategoryID, 10),
			Amount:      strconv.FormatFloat(expense.Amount, 'f', -1, 64),
			Description: expense.Description,
			ExpenseDate: expense.ExpenseDate,
			IsEssential: expense.IsEssential,
		},
	})
}

// UpdateExpense validates and overwrites all mutable fields of an expense.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	expense, ok := h.loadOwnedExpense(w, r, "edit")
	if !ok {
		return
	}

	form := parseExpenseForm(r)
	in, errs := form.validate()
	if len(errs) > 0 {
		categories, err := h.db.ListCategories(r.Context())
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		h.render(w, r, "expense_form.html", FormViewModel{
			User:       CurrentUser(r),
			IsEdit:     true,
			ExpenseID:  expense.ID,
			Categories: categories,
			Form:       form,
			Errors:     errs,
		})
		return
	}

	expense.CategoryID = in.CategoryID
	expense.Amount = in.Amount
	expense.Description = in.Description
	expense.ExpenseDate = in.ExpenseDate
	expense.IsEssential = in.IsEssential

	if err := h.db.UpdateExpense(r.Context(), expense); err != nil {
		h.serverError(w, r, err)
		return
	}

	h.setFlash(w, FlashSuccess, "Expense updated.")
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

// DeleteExpense permanently removes an expense.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	expense, ok := h.loadOwnedExpense(w, r, "delete")
	if !ok {
		return
	}

	if err := h.db.DeleteExpense(r.Context(), expense.ID); err != nil {
		h.serverError(w, r, err)
		return
	}

	h.setFlash(w, FlashInfo, "Expense deleted.")
	http.Redirect(w, r, "/expenses", http.StatusFound)
}
