package storage

import (
	"context"
	"path/filepath"
	"testing"

	"spendbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// DBTestSuite provides a test suite for database operations
type DBTestSuite struct {
	suite.Suite
	db      *DB
	dbPath  string
	ctx     context.Context
	student *models.User
	admin   *models.User
}

// SetupTest runs before each test
func (suite *DBTestSuite) SetupTest() {
	suite.dbPath = filepath.Join(suite.T().TempDir(), "test.db")
	db, err := NewDB(suite.dbPath)
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()

	// Seeded accounts
	suite.student, err = suite.db.GetUserByUsername(suite.ctx, "student")
	require.NoError(suite.T(), err, "seed user missing")
	suite.admin, err = suite.db.GetUserByUsername(suite.ctx, "admin")
	require.NoError(suite.T(), err, "seed admin missing")
}

// TearDownTest runs after each test
func (suite *DBTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *DBTestSuite) categoryID(name string) int64 {
	categories, err := suite.db.ListCategories(suite.ctx)
	require.NoError(suite.T(), err)
	for _, c := range categories {
		if c.Name == name {
			return c.ID
		}
	}
	suite.T().Fatalf("category %s not found", name)
	return 0
}

func (suite *DBTestSuite) addExpense(userID, categoryID int64, amount float64, desc, date string, essential bool) *models.Expense {
	e := &models.Expense{
		UserID:      userID,
		CategoryID:  categoryID,
		Amount:      amount,
		Description: desc,
		ExpenseDate: date,
		IsEssential: essential,
	}
	require.NoError(suite.T(), suite.db.CreateExpense(suite.ctx, e))
	return e
}

func (suite *DBTestSuite) TestSeedData() {
	categories, err := suite.db.ListCategories(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), categories, 6, "expected six seed categories")

	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	for _, want := range []string{"Food", "Transport", "Rent", "Shopping", "Bills", "Other"} {
		assert.Contains(suite.T(), names, want)
	}

	assert.Equal(suite.T(), models.RoleUser, suite.student.Role)
	assert.Equal(suite.T(), models.RoleAdmin, suite.admin.Role)
	assert.True(suite.T(), suite.admin.IsAdmin())
	assert.False(suite.T(), suite.student.IsAdmin())
}

func (suite *DBTestSuite) TestSeedIdempotent() {
	// Re-open the same database; the bootstrap must not duplicate seeds.
	suite.db.Close()
	db, err := NewDB(suite.dbPath)
	require.NoError(suite.T(), err)
	suite.db = db

	categories, err := suite.db.ListCategories(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), categories, 6, "seed categories duplicated on re-run")

	student, err := suite.db.GetUserByUsername(suite.ctx, "student")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.student.ID, student.ID, "seed account duplicated on re-run")
	assert.Equal(suite.T(), "student123", student.Password)
}

func (suite *DBTestSuite) TestGetUserByCredentials() {
	user, err := suite.db.GetUserByCredentials(suite.ctx, "student", "student123")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "student", user.Username)

	// Exact match only
	_, err = suite.db.GetUserByCredentials(suite.ctx, "student", "Student123")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
	_, err = suite.db.GetUserByCredentials(suite.ctx, "student", "")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *DBTestSuite) TestCreateUserConflict() {
	_, err := suite.db.CreateUser(suite.ctx, "student", "otherpass", models.RoleAdmin)
	assert.ErrorIs(suite.T(), err, ErrConflict)

	// Original row must be unchanged
	user, err := suite.db.GetUserByUsername(suite.ctx, "student")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "student123", user.Password)
	assert.Equal(suite.T(), models.RoleUser, user.Role)
}

func (suite *DBTestSuite) TestCreateCategoryConflict() {
	_, err := suite.db.CreateCategory(suite.ctx, "Food")
	assert.ErrorIs(suite.T(), err, ErrConflict)

	categories, err := suite.db.ListCategories(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), categories, 6)
}

func (suite *DBTestSuite) TestExpenseCRUD() {
	food := suite.categoryID("Food")
	e := suite.addExpense(suite.student.ID, food, 12.50, "Lunch", "2024-01-01", true)

	got, err := suite.db.GetExpense(suite.ctx, e.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 12.50, got.Amount)
	assert.Equal(suite.T(), "Lunch", got.Description)
	assert.Equal(suite.T(), "2024-01-01", got.ExpenseDate)
	assert.True(suite.T(), got.IsEssential)

	got.Amount = 15.00
	got.Description = "Dinner"
	got.IsEssential = false
	require.NoError(suite.T(), suite.db.UpdateExpense(suite.ctx, got))

	updated, err := suite.db.GetExpense(suite.ctx, e.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 15.00, updated.Amount)
	assert.Equal(suite.T(), "Dinner", updated.Description)
	assert.False(suite.T(), updated.IsEssential)
	assert.Equal(suite.T(), suite.student.ID, updated.UserID, "ownership must not change on update")

	require.NoError(suite.T(), suite.db.DeleteExpense(suite.ctx, e.ID))
	_, err = suite.db.GetExpense(suite.ctx, e.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *DBTestSuite) TestGetExpenseNotFound() {
	_, err := suite.db.GetExpense(suite.ctx, 9999)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *DBTestSuite) TestCreateExpenseInvalidCategory() {
	e := &models.Expense{
		UserID:      suite.student.ID,
		CategoryID:  9999,
		Amount:      5.00,
		Description: "Ghost category",
		ExpenseDate: "2024-01-01",
	}
	err := suite.db.CreateExpense(suite.ctx, e)
	assert.ErrorIs(suite.T(), err, ErrConflict, "foreign key must reject unknown categories")
}

func (suite *DBTestSuite) TestCreateExpenseNegativeAmount() {
	e := &models.Expense{
		UserID:      suite.student.ID,
		CategoryID:  suite.categoryID("Food"),
		Amount:      -1.00,
		Description: "Refund",
		ExpenseDate: "2024-01-01",
	}
	err := suite.db.CreateExpense(suite.ctx, e)
	assert.ErrorIs(suite.T(), err, ErrConflict, "schema must reject negative amounts")
}

func (suite *DBTestSuite) TestListExpensesOrdering() {
	food := suite.categoryID("Food")
	first := suite.addExpense(suite.student.ID, food, 1.00, "Oldest", "2024-01-01", false)
	second := suite.addExpense(suite.student.ID, food, 2.00, "Same day early", "2024-02-01", false)
	third := suite.addExpense(suite.student.ID, food, 3.00, "Same day late", "2024-02-01", false)

	rows, err := suite.db.ListExpenses(suite.ctx, ExpenseFilter{})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 3)

	// Date descending, then ID descending as tie-break
	assert.Equal(suite.T(), third.ID, rows[0].ID)
	assert.Equal(suite.T(), second.ID, rows[1].ID)
	assert.Equal(suite.T(), first.ID, rows[2].ID)
}

func (suite *DBTestSuite) TestListExpensesOwnerScope() {
	food := suite.categoryID("Food")
	suite.addExpense(suite.student.ID, food, 10.00, "Mine", "2024-01-01", false)
	suite.addExpense(suite.admin.ID, food, 20.00, "Theirs", "2024-01-02", false)

	rows, err := suite.db.ListExpenses(suite.ctx, ExpenseFilter{UserID: &suite.student.ID})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	assert.Equal(suite.T(), suite.student.ID, rows[0].UserID)
	assert.Equal(suite.T(), "student", rows[0].Owner)

	// Unscoped returns everything
	rows, err = suite.db.ListExpenses(suite.ctx, ExpenseFilter{})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), rows, 2)
}

func (suite *DBTestSuite) TestListExpensesFilters() {
	food := suite.categoryID("Food")
	rent := suite.categoryID("Rent")
	suite.addExpense(suite.student.ID, food, 5.00, "Groceries", "2024-01-10", true)
	suite.addExpense(suite.student.ID, food, 7.50, "Takeaway", "2024-02-10", false)
	suite.addExpense(suite.student.ID, rent, 800.00, "January rent", "2024-01-01", true)

	// Category
	rows, err := suite.db.ListExpenses(suite.ctx, ExpenseFilter{CategoryID: &rent})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	assert.Equal(suite.T(), "January rent", rows[0].Description)
	assert.Equal(suite.T(), "Rent", rows[0].CategoryName)

	// Date range (lexicographic over Y-M-D)
	rows, err = suite.db.ListExpenses(suite.ctx, ExpenseFilter{DateFrom: "2024-01-05", DateTo: "2024-01-31"})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	assert.Equal(suite.T(), "Groceries", rows[0].Description)

	// Essential flag
	essential := true
	rows, err = suite.db.ListExpenses(suite.ctx, ExpenseFilter{Essential: &essential})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), rows, 2)

	notEssential := false
	rows, err = suite.db.ListExpenses(suite.ctx, ExpenseFilter{Essential: &notEssential})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	assert.Equal(suite.T(), "Takeaway", rows[0].Description)

	// Conjunction
	rows, err = suite.db.ListExpenses(suite.ctx, ExpenseFilter{CategoryID: &food, Essential: &essential})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	assert.Equal(suite.T(), "Groceries", rows[0].Description)
}

func (suite *DBTestSuite) TestDeleteCategoryRestricted() {
	food := suite.categoryID("Food")
	suite.addExpense(suite.student.ID, food, 5.00, "Groceries", "2024-01-10", false)

	err := suite.db.DeleteCategory(suite.ctx, food)
	assert.ErrorIs(suite.T(), err, ErrConflict, "referenced category must not be deletable")

	// Unreferenced category deletes fine
	other := suite.categoryID("Other")
	assert.NoError(suite.T(), suite.db.DeleteCategory(suite.ctx, other))

	categories, err := suite.db.ListCategories(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), categories, 5)
}

func (suite *DBTestSuite) TestDeleteUserCascadesExpenses() {
	food := suite.categoryID("Food")
	e := suite.addExpense(suite.student.ID, food, 5.00, "Groceries", "2024-01-10", false)

	_, err := suite.db.conn.ExecContext(suite.ctx, "DELETE FROM users WHERE id = ?", suite.student.ID)
	require.NoError(suite.T(), err)

	_, err = suite.db.GetExpense(suite.ctx, e.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound, "expenses must cascade with their owner")
}

// SessionTestSuite provides a test suite for session operations
type SessionTestSuite struct {
	suite.Suite
	db   *DB
	ctx  context.Context
	user *models.User
}

// SetupTest runs before each test
func (suite *SessionTestSuite) SetupTest() {
	db, err := NewDB(filepath.Join(suite.T().TempDir(), "test.db"))
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()

	user, err := suite.db.GetUserByUsername(suite.ctx, "student")
	require.NoError(suite.T(), err)
	suite.user = user
}

// TearDownTest runs after each test
func (suite *SessionTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *SessionTestSuite) TestCreateAndResolveSession() {
	err := suite.db.CreateSession(suite.ctx, "token-1", suite.user.ID)
	require.NoError(suite.T(), err)

	user, err := suite.db.GetSessionUser(suite.ctx, "token-1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "student", user.Username)
	assert.Equal(suite.T(), models.RoleUser, user.Role)
}

func (suite *SessionTestSuite) TestUnknownToken() {
	_, err := suite.db.GetSessionUser(suite.ctx, "no-such-token")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *SessionTestSuite) TestDeleteSession() {
	require.NoError(suite.T(), suite.db.CreateSession(suite.ctx, "token-2", suite.user.ID))

	_, err := suite.db.GetSessionUser(suite.ctx, "token-2")
	require.NoError(suite.T(), err, "session should exist before deletion")

	require.NoError(suite.T(), suite.db.DeleteSession(suite.ctx, "token-2"))

	_, err = suite.db.GetSessionUser(suite.ctx, "token-2")
	assert.Error(suite.T(), err, "expected error after deleting session")
}

// Test suite runners
func TestDBSuite(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
