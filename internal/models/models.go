package models

// Roles stored on a user record.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a user account.
// Passwords are stored and compared as opaque plain strings. That is a known
// hardening gap carried over from the original system, not an invitation.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the user has the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Category is a unique named label that expenses are recorded against.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Expense is a single spending record owned by exactly one user.
// ExpenseDate is kept as a YYYY-MM-DD string; range filtering relies on that
// format sorting lexicographically.
type Expense struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	CategoryID  int64   `json:"category_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	ExpenseDate string  `json:"expense_date"`
	IsEssential bool    `json:"is_essential"`
}

// ExpenseRow is an expense joined with its category and owner names,
// as returned by the listing query.
type ExpenseRow struct {
	Expense
	CategoryName string `json:"category_name"`
	Owner        string `json:"owner"`
}
