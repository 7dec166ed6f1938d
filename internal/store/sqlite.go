package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver (cgo), registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, registered as "sqlite"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(driver, dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and in-memory databases
	// exist per connection.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS foods (
        id TEXT PRIMARY KEY, -- UUID
        name TEXT NOT NULL,
        calories_per_100g REAL NOT NULL CHECK (calories_per_100g >= 0),
        protein_per_100g REAL NOT NULL CHECK (protein_per_100g >= 0),
        carbs_per_100g REAL NOT NULL CHECK (carbs_per_100g >= 0),
        fat_per_100g REAL NOT NULL CHECK (fat_per_100g >= 0),
        fiber_per_100g REAL,
        is_default BOOLEAN DEFAULT FALSE,
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS meal_plans (
        id TEXT PRIMARY KEY, -- UUID
        name TEXT NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS meals (
        id TEXT PRIMARY KEY, -- UUID
        meal_plan_id TEXT NOT NULL,
        name TEXT NOT NULL,
        emoji TEXT NOT NULL DEFAULT '',
        order_index INTEGER NOT NULL DEFAULT 0,
        FOREIGN KEY (meal_plan_id) REFERENCES meal_plans (id)
    );

    -- food_id is NULL for inline foods; the nutrition columns always hold a snapshot.
    CREATE TABLE IF NOT EXISTS meal_foods (
        id TEXT PRIMARY KEY, -- UUID
        meal_id TEXT NOT NULL,
        food_id TEXT,
        food_name TEXT NOT NULL,
        quantity_grams REAL NOT NULL CHECK (quantity_grams > 0),
        calories_per_100g REAL NOT NULL DEFAULT 0,
        protein_per_100g REAL NOT NULL DEFAULT 0,
        carbs_per_100g REAL NOT NULL DEFAULT 0,
        fat_per_100g REAL NOT NULL DEFAULT 0,
        fiber_per_100g REAL,
        FOREIGN KEY (meal_id) REFERENCES meals (id),
        FOREIGN KEY (food_id) REFERENCES foods (id)
    );

    CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY, -- UUID
        meal_plan_id TEXT NOT NULL,
        title TEXT,
        created_at TEXT NOT NULL,
        FOREIGN KEY (meal_plan_id) REFERENCES meal_plans (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        chat_id TEXT NOT NULL,
        sender TEXT NOT NULL CHECK (sender IN ('user', 'model')),
        content TEXT NOT NULL,
        timestamp TEXT NOT NULL,
        negative_feedback BOOLEAN DEFAULT FALSE,
        FOREIGN KEY (chat_id) REFERENCES chats (id)
    );

    CREATE INDEX IF NOT EXISTS idx_meals_plan ON meals (meal_plan_id);
    CREATE INDEX IF NOT EXISTS idx_meal_foods_meal ON meal_foods (meal_id);
    CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseStamp(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Food methods

func (s *SQLiteStore) CreateFood(ctx context.Context, food Food) (*Food, error) {
	if strings.TrimSpace(food.Name) == "" {
		return nil, fmt.Errorf("food name is required")
	}
	if err := food.Validate(); err != nil {
		return nil, err
	}
	food.ID = uuid.NewString()
	stamp := s.stamp()
	food.CreatedAt = parseStamp(stamp)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO foods (id, name, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g, fiber_per_100g, is_default, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		food.ID, food.Name, food.CaloriesPer100g, food.ProteinPer100g, food.CarbsPer100g, food.FatPer100g,
		nullableFloat(food.FiberPer100g), food.IsDefault, stamp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert food: %w", err)
	}
	return &food, nil
}

func scanFood(row interface{ Scan(...any) error }) (*Food, error) {
	var food Food
	var fiber sql.NullFloat64
	var createdAt string
	err := row.Scan(&food.ID, &food.Name, &food.CaloriesPer100g, &food.ProteinPer100g, &food.CarbsPer100g,
		&food.FatPer100g, &fiber, &food.IsDefault, &createdAt)
	if err != nil {
		return nil, err
	}
	food.FiberPer100g = floatPtr(fiber)
	food.CreatedAt = parseStamp(createdAt)
	return &food, nil
}

const foodColumns = `id, name, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g, fiber_per_100g, is_default, created_at`

// ListFoods returns the catalog ordered by name.
func (s *SQLiteStore) ListFoods(ctx context.Context) ([]Food, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+foodColumns+" FROM foods ORDER BY name COLLATE NOCASE, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	var foods []Food
	for rows.Next() {
		food, err := scanFood(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food row: %w", err)
		}
		foods = append(foods, *food)
	}
	return foods, rows.Err()
}

func (s *SQLiteStore) GetFood(ctx context.Context, foodID string) (*Food, error) {
	food, err := scanFood(s.db.QueryRowContext(ctx, "SELECT "+foodColumns+" FROM foods WHERE id = ?", foodID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("food %s: %w", foodID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get food: %w", err)
	}
	return food, nil
}

func (s *SQLiteStore) UpdateFood(ctx context.Context, foodID string, n Nutrition) (*Food, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE foods SET calories_per_100g = ?, protein_per_100g = ?, carbs_per_100g = ?, fat_per_100g = ?, fiber_per_100g = ?
         WHERE id = ?`,
		n.CaloriesPer100g, n.ProteinPer100g, n.CarbsPer100g, n.FatPer100g, nullableFloat(n.FiberPer100g), foodID)
	if err != nil {
		return nil, fmt.Errorf("failed to update food: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("food %s: %w", foodID, ErrNotFound)
	}
	return s.GetFood(ctx, foodID)
}

// Meal plan methods

func (s *SQLiteStore) CreateMealPlan(ctx context.Context, name string) (*MealPlan, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultPlanName
	}
	plan := &MealPlan{ID: uuid.NewString(), Name: name, Meals: []Meal{}}
	stamp := s.stamp()
	plan.CreatedAt = parseStamp(stamp)
	plan.UpdatedAt = plan.CreatedAt

	_, err := s.db.ExecContext(ctx, "INSERT INTO meal_plans (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		plan.ID, plan.Name, stamp, stamp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert meal plan: %w", err)
	}
	return plan, nil
}

func (s *SQLiteStore) ListMealPlanIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM meal_plans ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query meal plans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan meal plan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMealPlan loads a plan with its meals (by order_index) and their foods
// (in insertion order).
func (s *SQLiteStore) GetMealPlan(ctx context.Context, planID string) (*MealPlan, error) {
	var plan MealPlan
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, "SELECT id, name, created_at, updated_at FROM meal_plans WHERE id = ?", planID).
		Scan(&plan.ID, &plan.Name, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("meal plan %s: %w", planID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get meal plan: %w", err)
	}
	plan.CreatedAt = parseStamp(createdAt)
	plan.UpdatedAt = parseStamp(updatedAt)

	meals, err := s.loadMeals(ctx, planID)
	if err != nil {
		return nil, err
	}
	foods, err := s.loadMealFoods(ctx, planID)
	if err != nil {
		return nil, err
	}
	for i := range meals {
		meals[i].Foods = foods[meals[i].ID]
		if meals[i].Foods == nil {
			meals[i].Foods = []MealFood{}
		}
	}
	plan.Meals = meals
	plan.SortMeals()
	return &plan, nil
}

func (s *SQLiteStore) loadMeals(ctx context.Context, planID string) ([]Meal, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, meal_plan_id, name, emoji, order_index FROM meals WHERE meal_plan_id = ? ORDER BY order_index, rowid", planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer rows.Close()

	meals := []Meal{}
	for rows.Next() {
		var meal Meal
		if err := rows.Scan(&meal.ID, &meal.MealPlanID, &meal.Name, &meal.Emoji, &meal.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan meal row: %w", err)
		}
		meals = append(meals, meal)
	}
	return meals, rows.Err()
}

const mealFoodSelect = `
    SELECT mf.id, mf.meal_id, COALESCE(mf.food_id, ''), mf.quantity_grams,
           COALESCE(f.name, mf.food_name),
           COALESCE(f.calories_per_100g, mf.calories_per_100g),
           COALESCE(f.protein_per_100g, mf.protein_per_100g),
           COALESCE(f.carbs_per_100g, mf.carbs_per_100g),
           COALESCE(f.fat_per_100g, mf.fat_per_100g),
           CASE WHEN f.id IS NOT NULL THEN f.fiber_per_100g ELSE mf.fiber_per_100g END,
           COALESCE(f.is_default, FALSE), mf.rowid
    FROM meal_foods mf
    LEFT JOIN foods f ON f.id = mf.food_id`

func scanMealFood(row interface{ Scan(...any) error }) (*MealFood, error) {
	var mf MealFood
	var fiber sql.NullFloat64
	err := row.Scan(&mf.ID, &mf.MealID, &mf.FoodID, &mf.QuantityGrams, &mf.Food.Name,
		&mf.Food.CaloriesPer100g, &mf.Food.ProteinPer100g, &mf.Food.CarbsPer100g, &mf.Food.FatPer100g,
		&fiber, &mf.Food.IsDefault, &mf.Seq)
	if err != nil {
		return nil, err
	}
	mf.Food.ID = mf.FoodID
	mf.Food.FiberPer100g = floatPtr(fiber)
	return &mf, nil
}

func (s *SQLiteStore) loadMealFoods(ctx context.Context, planID string) (map[string][]MealFood, error) {
	rows, err := s.db.QueryContext(ctx,
		mealFoodSelect+" JOIN meals m ON m.id = mf.meal_id WHERE m.meal_plan_id = ? ORDER BY mf.rowid", planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query meal foods: %w", err)
	}
	defer rows.Close()

	byMeal := make(map[string][]MealFood)
	for rows.Next() {
		mf, err := scanMealFood(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal food row: %w", err)
		}
		byMeal[mf.MealID] = append(byMeal[mf.MealID], *mf)
	}
	return byMeal, rows.Err()
}

func (s *SQLiteStore) getMealFood(ctx context.Context, mealFoodID string) (*MealFood, error) {
	mf, err := scanMealFood(s.db.QueryRowContext(ctx, mealFoodSelect+" WHERE mf.id = ?", mealFoodID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("meal food %s: %w", mealFoodID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get meal food: %w", err)
	}
	return mf, nil
}

func (s *SQLiteStore) touchPlanOfMeal(ctx context.Context, mealID string) {
	// updated_at is informational; a failure here does not fail the mutation.
	s.db.ExecContext(ctx, "UPDATE meal_plans SET updated_at = ? WHERE id = (SELECT meal_plan_id FROM meals WHERE id = ?)",
		s.stamp(), mealID)
}

// Meal methods

func (s *SQLiteStore) AddMeal(ctx context.Context, planID, name, emoji string) (*Meal, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("meal name is required")
	}
	if emoji == "" {
		emoji = DefaultMealEmoji
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM meal_plans WHERE id = ?", planID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check meal plan: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("meal plan %s: %w", planID, ErrNotFound)
	}

	var maxOrder sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(order_index) FROM meals WHERE meal_plan_id = ?", planID).Scan(&maxOrder); err != nil {
		return nil, fmt.Errorf("failed to read meal order: %w", err)
	}
	next := 0
	if maxOrder.Valid {
		next = int(maxOrder.Int64) + 1
	}

	meal := &Meal{ID: uuid.NewString(), MealPlanID: planID, Name: name, Emoji: emoji, OrderIndex: next, Foods: []MealFood{}}
	_, err := s.db.ExecContext(ctx, "INSERT INTO meals (id, meal_plan_id, name, emoji, order_index) VALUES (?, ?, ?, ?, ?)",
		meal.ID, meal.MealPlanID, meal.Name, meal.Emoji, meal.OrderIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to insert meal: %w", err)
	}
	s.touchPlanOfMeal(ctx, meal.ID)
	return meal, nil
}

// DeleteMeal removes a meal and all of its foods.
func (s *SQLiteStore) DeleteMeal(ctx context.Context, mealID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var planID string
	if err := tx.QueryRowContext(ctx, "SELECT meal_plan_id FROM meals WHERE id = ?", mealID).Scan(&planID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("meal %s: %w", mealID, ErrNotFound)
		}
		return fmt.Errorf("failed to get meal: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM meal_foods WHERE meal_id = ?", mealID); err != nil {
		return fmt.Errorf("failed to delete meal foods: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM meals WHERE id = ?", mealID); err != nil {
		return fmt.Errorf("failed to delete meal: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE meal_plans SET updated_at = ? WHERE id = ?", s.stamp(), planID); err != nil {
		return fmt.Errorf("failed to touch meal plan: %w", err)
	}
	return tx.Commit()
}

// Meal food methods

func (s *SQLiteStore) insertMealFood(ctx context.Context, exec interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, id string, seq sql.NullInt64, mealID string, food Food, grams float64) error {
	var foodID sql.NullString
	if food.ID != "" {
		foodID = sql.NullString{String: food.ID, Valid: true}
	}
	_, err := exec.ExecContext(ctx,
		`INSERT INTO meal_foods (rowid, id, meal_id, food_id, food_name, quantity_grams, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g, fiber_per_100g)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, id, mealID, foodID, food.Name, grams, food.CaloriesPer100g, food.ProteinPer100g, food.CarbsPer100g,
		food.FatPer100g, nullableFloat(food.FiberPer100g))
	if err != nil {
		return fmt.Errorf("failed to insert meal food: %w", err)
	}
	return nil
}

func (s *SQLiteStore) checkMeal(ctx context.Context, mealID string) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM meals WHERE id = ?", mealID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check meal: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("meal %s: %w", mealID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) AddFoodToMeal(ctx context.Context, mealID, foodID string, quantityGrams float64) (*MealFood, error) {
	if quantityGrams <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", quantityGrams)
	}
	if err := s.checkMeal(ctx, mealID); err != nil {
		return nil, err
	}
	food, err := s.GetFood(ctx, foodID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := s.insertMealFood(ctx, s.db, id, sql.NullInt64{}, mealID, *food, quantityGrams); err != nil {
		return nil, err
	}
	s.touchPlanOfMeal(ctx, mealID)
	return s.getMealFood(ctx, id)
}

// AddDirectFoodToMeal creates a catalog food from the given nutrition and
// attaches it to the meal in one transaction.
func (s *SQLiteStore) AddDirectFoodToMeal(ctx context.Context, mealID, foodName string, quantityGrams float64, n Nutrition) (*MealFood, error) {
	if quantityGrams <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", quantityGrams)
	}
	if strings.TrimSpace(foodName) == "" {
		return nil, fmt.Errorf("food name is required")
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkMeal(ctx, mealID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	food := Food{ID: uuid.NewString(), Name: foodName, Nutrition: n}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO foods (id, name, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g, fiber_per_100g, is_default, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, FALSE, ?)`,
		food.ID, food.Name, n.CaloriesPer100g, n.ProteinPer100g, n.CarbsPer100g, n.FatPer100g,
		nullableFloat(n.FiberPer100g), s.stamp())
	if err != nil {
		return nil, fmt.Errorf("failed to insert food: %w", err)
	}

	id := uuid.NewString()
	if err := s.insertMealFood(ctx, tx, id, sql.NullInt64{}, mealID, food, quantityGrams); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit direct food: %w", err)
	}
	s.touchPlanOfMeal(ctx, mealID)
	return s.getMealFood(ctx, id)
}

// RestoreMealFood re-inserts a previously removed meal food under its original
// ID and, when the slot is still free, its original position in the meal. The
// entry keeps its catalog link if the food still exists and falls back to the
// nutrition snapshot otherwise.
func (s *SQLiteStore) RestoreMealFood(ctx context.Context, mf MealFood) (*MealFood, error) {
	if mf.ID == "" {
		return nil, fmt.Errorf("meal food id is required")
	}
	if mf.QuantityGrams <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", mf.QuantityGrams)
	}
	if err := s.checkMeal(ctx, mf.MealID); err != nil {
		return nil, err
	}

	food := mf.Food
	food.ID = mf.FoodID
	if food.ID != "" {
		if _, err := s.GetFood(ctx, food.ID); err != nil {
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			food.ID = ""
		}
	}

	var seq sql.NullInt64
	if mf.Seq > 0 {
		var taken int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM meal_foods WHERE rowid = ?", mf.Seq).Scan(&taken); err != nil {
			return nil, fmt.Errorf("failed to check meal food slot: %w", err)
		}
		if taken == 0 {
			seq = sql.NullInt64{Int64: mf.Seq, Valid: true}
		}
	}

	if err := s.insertMealFood(ctx, s.db, mf.ID, seq, mf.MealID, food, mf.QuantityGrams); err != nil {
		return nil, err
	}
	s.touchPlanOfMeal(ctx, mf.MealID)
	return s.getMealFood(ctx, mf.ID)
}

func (s *SQLiteStore) UpdateFoodQuantity(ctx context.Context, mealFoodID string, quantityGrams float64) (*MealFood, error) {
	if quantityGrams <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", quantityGrams)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE meal_foods SET quantity_grams = ? WHERE id = ?", quantityGrams, mealFoodID)
	if err != nil {
		return nil, fmt.Errorf("failed to update food quantity: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("meal food %s: %w", mealFoodID, ErrNotFound)
	}
	mf, err := s.getMealFood(ctx, mealFoodID)
	if err != nil {
		return nil, err
	}
	s.touchPlanOfMeal(ctx, mf.MealID)
	return mf, nil
}

func (s *SQLiteStore) RemoveFoodFromMeal(ctx context.Context, mealFoodID string) error {
	var mealID string
	err := s.db.QueryRowContext(ctx, "SELECT meal_id FROM meal_foods WHERE id = ?", mealFoodID).Scan(&mealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("meal food %s: %w", mealFoodID, ErrNotFound)
		}
		return fmt.Errorf("failed to get meal food: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM meal_foods WHERE id = ?", mealFoodID); err != nil {
		return fmt.Errorf("failed to delete meal food: %w", err)
	}
	s.touchPlanOfMeal(ctx, mealID)
	return nil
}

// Chat methods

func (s *SQLiteStore) CreateChat(ctx context.Context, mealPlanID string, title *string) (*Chat, error) {
	chatID := uuid.NewString()
	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO chats (id, meal_plan_id, title, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chat insert: %w", err)
	}
	defer stmt.Close()

	stamp := s.stamp()
	_, err = stmt.ExecContext(ctx, chatID, mealPlanID, title, stamp)
	if err != nil {
		return nil, fmt.Errorf("failed to execute chat insert: %w", err)
	}
	return &Chat{ID: chatID, MealPlanID: mealPlanID, Title: title, CreatedAt: parseStamp(stamp)}, nil
}

func scanChat(row interface{ Scan(...any) error }) (*Chat, error) {
	var chat Chat
	var title sql.NullString
	var createdAt string
	if err := row.Scan(&chat.ID, &chat.MealPlanID, &title, &createdAt); err != nil {
		return nil, err
	}
	if title.Valid {
		chat.Title = &title.String
	}
	chat.CreatedAt = parseStamp(createdAt)
	return &chat, nil
}

func (s *SQLiteStore) GetChatByID(ctx context.Context, chatID string) (*Chat, error) {
	chat, err := scanChat(s.db.QueryRowContext(ctx, "SELECT id, meal_plan_id, title, created_at FROM chats WHERE id = ?", chatID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

func (s *SQLiteStore) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, meal_plan_id, title, created_at FROM chats ORDER BY rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, *chat)
	}
	return chats, rows.Err()
}

func (s *SQLiteStore) UpdateChatTitle(ctx context.Context, chatID string, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE chats SET title = ? WHERE id = ?", title, chatID)
	if err != nil {
		return fmt.Errorf("failed to execute chat title update: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}
	return nil
}

// Message methods

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString()
	stamp := s.stamp()
	msg.Timestamp = parseStamp(stamp)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, chat_id, sender, content, timestamp, negative_feedback) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ChatID, msg.Sender, msg.Content, stamp, msg.NegativeFeedback)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	messages := []Message{}
	for rows.Next() {
		var msg Message
		var stamp string
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Sender, &msg.Content, &stamp, &msg.NegativeFeedback); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Timestamp = parseStamp(stamp)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) GetMessagesByChatID(ctx context.Context, chatID string, limit int, offset int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, chat_id, sender, content, timestamp, negative_feedback FROM messages WHERE chat_id = ? ORDER BY rowid ASC LIMIT ? OFFSET ?",
		chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetLastNMessagesByChatID returns the newest n messages, oldest first.
func (s *SQLiteStore) GetLastNMessagesByChatID(ctx context.Context, chatID string, n int) ([]Message, error) {
	query := `
        SELECT id, chat_id, sender, content, timestamp, negative_feedback
        FROM messages
        WHERE chat_id = ?
        ORDER BY rowid DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, query, chatID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *SQLiteStore) UpdateMessageFeedback(ctx context.Context, messageID string, negativeFeedback bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET negative_feedback = ? WHERE id = ?", negativeFeedback, messageID)
	if err != nil {
		return fmt.Errorf("failed to execute feedback update: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}
