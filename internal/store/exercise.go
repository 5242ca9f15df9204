package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/repcount/internal/exercise"
)

// Exercise is a stored exercise configuration.
type Exercise struct {
	ID        string          `json:"id"`
	Config    exercise.Config `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ExerciseRepository provides CRUD operations for exercises.
type ExerciseRepository struct {
	db *sql.DB
}

// Exercises returns the exercise repository for this store.
func (s *Store) Exercises() *ExerciseRepository {
	return &ExerciseRepository{db: s.db}
}

const exerciseColumns = `id, config, created_at, updated_at`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanExercise reads one row selected with exerciseColumns. The config
// column holds the JSON encoded exercise.Config.
func scanExercise(row scanner) (*Exercise, error) {
	e := &Exercise{}
	var config string
	if err := row.Scan(&e.ID, &config, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &e.Config); err != nil {
		return nil, fmt.Errorf("decode exercise %s: %w", e.ID, err)
	}
	return e, nil
}

// Create validates and inserts a new exercise. An empty ID is generated.
func (r *ExerciseRepository) Create(e *Exercise) error {
	if err := e.Config.Validate(); err != nil {
		return err
	}
	config, err := json.Marshal(e.Config)
	if err != nil {
		return err
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err = r.db.Exec(
		`INSERT INTO exercises (id, name, kind, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Config.Name, string(e.Config.Kind), string(config), e.CreatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("exercise %q: %w", e.Config.Name, ErrDuplicate)
	}
	return err
}

// GetByID retrieves an exercise by its ID.
func (r *ExerciseRepository) GetByID(id string) (*Exercise, error) {
	e, err := scanExercise(r.db.QueryRow(
		`SELECT `+exerciseColumns+` FROM exercises WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// GetByName retrieves an exercise by its name.
func (r *ExerciseRepository) GetByName(name string) (*Exercise, error) {
	e, err := scanExercise(r.db.QueryRow(
		`SELECT `+exerciseColumns+` FROM exercises WHERE name = ?`, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List retrieves all exercises ordered by name.
func (r *ExerciseRepository) List() ([]*Exercise, error) {
	rows, err := r.db.Query(`SELECT ` + exerciseColumns + ` FROM exercises ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exercises []*Exercise
	for rows.Next() {
		e, err := scanExercise(rows)
		if err != nil {
			return nil, err
		}
		exercises = append(exercises, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return exercises, nil
}

// Update replaces the configuration of an existing exercise.
func (r *ExerciseRepository) Update(e *Exercise) error {
	if err := e.Config.Validate(); err != nil {
		return err
	}
	config, err := json.Marshal(e.Config)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()

	// Renames are allowed; the name column stays unique

	result, err := r.db.Exec(
		`UPDATE exercises SET name = ?, kind = ?, config = ?, updated_at = ?
		 WHERE id = ?`,
		e.Config.Name, string(e.Config.Kind), string(config), e.UpdatedAt, e.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("exercise %q: %w", e.Config.Name, ErrDuplicate)
	}
	if err != nil {
		return err
	}

	// Check if any row was updated
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes an exercise by its ID.
func (r *ExerciseRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM exercises WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
