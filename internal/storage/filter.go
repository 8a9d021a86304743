package storage

import "strings"

// ExpenseFilter holds the recognized listing predicates. A nil or empty field
// contributes nothing; set fields each add one conjunctive predicate.
//
// UserID is the ownership scope. Handlers force it to the session's user for
// non-administrators before the filter reaches the store.
type ExpenseFilter struct {
	UserID     *int64
	CategoryID *int64
	DateFrom   string
	DateTo     string
	Essential  *bool
}

// where renders the filter as a WHERE clause with bound arguments.
func (f ExpenseFilter) where() (string, []any) {
	var clauses []string
	var args []any

	if f.UserID != nil {
		clauses = append(clauses, "e.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.CategoryID != nil {
		clauses = append(clauses, "e.category_id = ?")
		args = append(args, *f.CategoryID)
	}
	// Lexicographic comparison; valid only while dates stay YYYY-MM-DD.
	if f.DateFrom != "" {
		clauses = append(clauses, "e.expense_date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, "e.expense_date <= ?")
		args = append(args, f.DateTo)
	}
	if f.Essential != nil {
		clauses = append(clauses, "e.is_essential = ?")
		args = append(args, boolToInt(*f.Essential))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "\n\t\tWHERE " + strings.Join(clauses, " AND "), args
}
