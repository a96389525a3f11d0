package testutil

import (
	"context"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/messaging"
	"github.com/trezcool/ecole/core/user"
	"github.com/trezcool/ecole/storage/database"
)

// NewConfig returns a test configuration backed by a fresh in-memory sqlite database.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Ecole",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret",
		DefaultFromEmail: "Ecole <noreply@ecole.test>",
		FrontendBaseURL:  "http://localhost:3000",
		Database: core.DatabaseConfig{
			Engine: database.EngineSQLite,
			Path:   "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
		},
	}
}

// PrepareDB opens and migrates a private in-memory database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.Open(NewConfig())
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// NewValidator returns a validator with every custom tag registered.
func NewValidator() *validator.Validate {
	validate, _ := NewTranslatedValidator()
	return validate
}

// NewTranslatedValidator also returns the translator holding the custom error texts.
func NewTranslatedValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	messaging.InitValidators(validate, translator)
	return validate, translator
}

func insert(t *testing.T, db *sqlx.DB, q string, args ...interface{}) int64 {
	t.Helper()
	var id int64
	if err := db.GetContext(context.Background(), &id, db.Rebind(q), args...); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	return id
}

func CreateStudent(t *testing.T, db *sqlx.DB, firstName, lastName, class, email string) user.Ref {
	t.Helper()
	id := insert(t, db,
		`INSERT INTO students (first_name, last_name, class, email) VALUES (?, ?, ?, ?) RETURNING id`,
		firstName, lastName, class, email,
	)
	return user.Ref{ID: id, Type: user.TypeStudent}
}

// CreateParent creates a parent of every given student.
func CreateParent(t *testing.T, db *sqlx.DB, firstName, lastName, email string, children ...user.Ref) user.Ref {
	t.Helper()
	id := insert(t, db,
		`INSERT INTO parents (first_name, last_name, email) VALUES (?, ?, ?) RETURNING id`,
		firstName, lastName, email,
	)
	for _, child := range children {
		q := db.Rebind(`INSERT INTO parent_students (parent_id, student_id) VALUES (?, ?)`)
		if _, err := db.Exec(q, id, child.ID); err != nil {
			t.Fatalf("CreateParent() failed: %v", err)
		}
	}
	return user.Ref{ID: id, Type: user.TypeParent}
}

func CreateStaff(t *testing.T, db *sqlx.DB, typ user.Type, firstName, lastName, email string) user.Ref {
	t.Helper()
	if !typ.IsStaff() {
		t.Fatalf("CreateStaff() failed: %q is not a staff type", typ)
	}
	id := insert(t, db,
		`INSERT INTO staff (type, first_name, last_name, email) VALUES (?, ?, ?, ?) RETURNING id`,
		typ, firstName, lastName, email,
	)
	return user.Ref{ID: id, Type: typ}
}

func Principal(ref user.Ref, name ...string) user.Principal {
	pr := user.Principal{ID: ref.ID, Type: ref.Type}
	if len(name) > 0 {
		pr.Name = name[0]
	}
	return pr
}
