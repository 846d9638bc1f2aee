package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/amartel/anota/internal/action"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the interaction audit trail and
// the tasks/notes/reminders created from confirmed interpretations.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "anota.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in
// ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Interactions (audit store) ---

const interactionColumns = "id, user_id, user_input, interpretation, needs_confirmation, confirmation_state, created_at"

func (s *Store) SaveInteraction(i Interaction) error {
	state := i.ConfirmationState
	if state == "" {
		state = StateUndetermined
	}
	_, err := s.db.Exec(`
		INSERT INTO interactions (`+interactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.UserInput, i.Interpretation,
		boolToInt(i.NeedsConfirmation), string(state), i.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) GetInteraction(id string) (Interaction, error) {
	row := s.db.QueryRow(`SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, id)
	i, err := scanInteraction(row)
	if err == sql.ErrNoRows {
		return Interaction{}, ErrNotFound
	}
	return i, err
}

// ListPendingInteractions returns the user's interactions that still await
// confirmation, oldest first.
func (s *Store) ListPendingInteractions(userID string) ([]Interaction, error) {
	rows, err := s.db.Query(`
		SELECT `+interactionColumns+` FROM interactions
		WHERE user_id = ? AND needs_confirmation = 1 AND confirmation_state = ?
		ORDER BY created_at ASC`, userID, string(StateUndetermined),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// RejectInteraction transitions an interaction from undetermined to
// rejected. The transition is a compare-and-swap: if the interaction has
// already been settled, ErrInvalidState is returned.
func (s *Store) RejectInteraction(id string) error {
	res, err := s.db.Exec(`
		UPDATE interactions SET confirmation_state = ?
		WHERE id = ? AND confirmation_state = ?`,
		string(StateRejected), id, string(StateUndetermined),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidState
	}
	return nil
}

// ConfirmInteraction transitions an interaction from undetermined to
// confirmed and creates the entity described by interp, as one atomic
// transaction. At most one of two racing confirms can win the
// compare-and-swap; the loser gets ErrInvalidState and creates nothing.
// If entity creation fails the transition is rolled back.
func (s *Store) ConfirmInteraction(id, userID string, interp action.Interpretation) (action.Entity, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return action.Entity{}, fmt.Errorf("beginning confirm transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE interactions SET confirmation_state = ?
		WHERE id = ? AND confirmation_state = ?`,
		string(StateConfirmed), id, string(StateUndetermined),
	)
	if err != nil {
		return action.Entity{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return action.Entity{}, err
	}
	if n == 0 {
		return action.Entity{}, ErrInvalidState
	}

	ent, err := createEntity(tx, userID, interp)
	if err != nil {
		return action.Entity{}, err
	}

	if err := tx.Commit(); err != nil {
		return action.Entity{}, fmt.Errorf("committing confirm: %w", err)
	}
	return ent, nil
}

// --- Actions (action store) ---

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// CreateAction persists the entity described by interp for the given user
// and returns its identity.
func (s *Store) CreateAction(userID string, interp action.Interpretation) (action.Entity, error) {
	return createEntity(s.db, userID, interp)
}

func createEntity(e execer, userID string, interp action.Interpretation) (action.Entity, error) {
	if err := interp.Validate(); err != nil {
		return action.Entity{}, fmt.Errorf("invalid interpretation: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	switch interp.Type {
	case action.TypeTask:
		t := interp.Task
		var due any
		if t.DueDate != nil {
			due = t.DueDate.UTC().Format(time.RFC3339Nano)
		}
		_, err := e.Exec(`
			INSERT INTO tasks (id, user_id, title, description, due_date, priority, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, userID, t.Title, t.Description, due, string(t.Priority), now,
		)
		if err != nil {
			return action.Entity{}, fmt.Errorf("creating task: %w", err)
		}
		return action.Entity{Type: action.TypeTask, ID: id}, nil

	case action.TypeNote:
		nt := interp.Note
		_, err := e.Exec(`
			INSERT INTO notes (id, user_id, title, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			id, userID, nt.Title, nt.Content, now,
		)
		if err != nil {
			return action.Entity{}, fmt.Errorf("creating note: %w", err)
		}
		return action.Entity{Type: action.TypeNote, ID: id}, nil

	case action.TypeReminder:
		r := interp.Reminder
		_, err := e.Exec(`
			INSERT INTO reminders (id, user_id, title, description, reminder_date, is_recurring, recurrence_rule, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, userID, r.Title, r.Description, r.ReminderDate.UTC().Format(time.RFC3339Nano),
			boolToInt(r.IsRecurring), r.RecurrenceRule, now,
		)
		if err != nil {
			return action.Entity{}, fmt.Errorf("creating reminder: %w", err)
		}
		return action.Entity{Type: action.TypeReminder, ID: id}, nil

	default:
		return action.Entity{}, fmt.Errorf("cannot create entity for action_type %q", interp.Type)
	}
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (Interaction, error) {
	var i Interaction
	var needsConfirmation int
	var state, createdAt string
	err := row.Scan(&i.ID, &i.UserID, &i.UserInput, &i.Interpretation, &needsConfirmation, &state, &createdAt)
	if err != nil {
		return Interaction{}, err
	}
	i.NeedsConfirmation = needsConfirmation != 0
	i.ConfirmationState = ConfirmationState(state)
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	i.CreatedAt = t
	return i, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
