package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"spendbook/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// Sentinel errors returned by store operations. Handlers branch on these;
// anything else is a store-level failure and fatal to the request.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness or
	// referential constraint.
	ErrConflict = errors.New("conflict")
)

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection, runs migrations and applies seed data.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection also keeps the
	// foreign_keys pragma applied everywhere.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	if err := RunMigrations(path); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// constraintErr maps driver constraint violations to ErrConflict.
func constraintErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// ---- users ----

// CreateUser inserts a new user. A duplicate username returns ErrConflict.
func (db *DB) CreateUser(ctx context.Context, username, password, role string) (*models.User, error) {
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (username, password, role) VALUES (?, ?, ?)",
		username, password, role,
	)
	if err != nil {
		return nil, constraintErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, password, role FROM users WHERE id = ?", id)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, password, role FROM users WHERE username = ?", username)
	return scanUser(row)
}

// GetUserByCredentials retrieves the user whose username and password both
// match exactly. The comparison is an opaque string match; see the hardening
// note in internal/models.
func (db *DB) GetUserByCredentials(ctx context.Context, username, password string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, password, role FROM users WHERE username = ? AND password = ?",
		username, password)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ---- sessions ----

// CreateSession stores a session token for a user.
func (db *DB) CreateSession(ctx context.Context, token string, userID int64) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id) VALUES (?, ?)", token, userID)
	return err
}

// GetSessionUser resolves a session token to its user, including role.
// Sessions do not expire; they end only at logout.
func (db *DB) GetSessionUser(ctx context.Context, token string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password, u.role
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ?`, token)
	return scanUser(row)
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// ---- categories ----

// ListCategories returns all categories ordered by name.
func (db *DB) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a new category. A duplicate name returns ErrConflict.
func (db *DB) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	result, err := db.conn.ExecContext(ctx, "INSERT INTO categories (name) VALUES (?)", name)
	if err != nil {
		return nil, constraintErr(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Category{ID: id, Name: name}, nil
}

// DeleteCategory removes a category. The schema restricts deletion while any
// expense references the category, which surfaces as ErrConflict. Not exposed
// on any route yet; the invariant still holds if one is added.
func (db *DB) DeleteCategory(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return constraintErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- expenses ----

// CreateExpense inserts a new expense.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO expenses (user_id, category_id, amount, description, expense_date, is_essential)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.CategoryID, e.Amount, e.Description, e.ExpenseDate, boolToInt(e.IsEssential),
	)
	if err != nil {
		return constraintErr(err)
	}
	e.ID, err = result.LastInsertId()
	return err
}

// GetExpense retrieves a single expense by ID.
func (db *DB) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, category_id, amount, description, expense_date, is_essential
		FROM expenses WHERE id = ?`, id)

	var e models.Expense
	var essential int
	if err := row.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.Amount, &e.Description, &e.ExpenseDate, &essential); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.IsEssential = essential != 0
	return &e, nil
}

// UpdateExpense overwrites all mutable fields of an existing expense.
// Ownership never changes.
func (db *DB) UpdateExpense(ctx context.Context, e *models.Expense) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE expenses
		SET category_id = ?, amount = ?, description = ?, expense_date = ?, is_essential = ?
		WHERE id = ?`,
		e.CategoryID, e.Amount, e.Description, e.ExpenseDate, boolToInt(e.IsEssential), e.ID,
	)
	return constraintErr(err)
}

// DeleteExpense permanently removes an expense.
func (db *DB) DeleteExpense(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	return err
}

// ListExpenses returns expenses matching the filter, joined with category and
// owner names, most recent date first with ID as the tie-break. Every filter
// value travels as a bound parameter, never query text.
func (db *DB) ListExpenses(ctx context.Context, f ExpenseFilter) ([]models.ExpenseRow, error) {
	where, args := f.where()
	query := `
		SELECT
			e.id, e.user_id, e.category_id, e.amount, e.description,
			e.expense_date, e.is_essential,
			c.name AS category_name,
			u.username AS owner
		FROM expenses e
		JOIN categories c ON c.id = e.category_id
		JOIN users u ON u.id = e.user_id` +
		where + `
		ORDER BY e.expense_date DESC, e.id DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ExpenseRow
	for rows.Next() {
		var r models.ExpenseRow
		var essential int
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.CategoryID, &r.Amount, &r.Description,
			&r.ExpenseDate, &essential, &r.CategoryName, &r.Owner,
		); err != nil {
			return nil, err
		}
		r.IsEssential = essential != 0
		result = append(result, r)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
