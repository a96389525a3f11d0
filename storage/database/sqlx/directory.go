package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/directory"
	"github.com/trezcool/ecole/core/user"
)

type directoryRepository struct {
	exec core.DBExecutor
}

var _ directory.Repository = (*directoryRepository)(nil) // interface compliance check

func NewDirectoryRepository(exec core.DBExecutor) *directoryRepository {
	return &directoryRepository{exec: exec}
}

type contactRow struct {
	ID        int64  `db:"id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Email     string `db:"email"`
}

func (repo directoryRepository) Contacts(ctx context.Context, refs []user.Ref) ([]directory.Contact, error) {
	idsByType := make(map[user.Type][]int64)
	for _, ref := range user.DedupRefs(refs) {
		idsByType[ref.Type] = append(idsByType[ref.Type], ref.ID)
	}

	contacts := make([]directory.Contact, 0, len(refs))
	for _, typ := range user.AllTypes {
		ids := idsByType[typ]
		if len(ids) == 0 {
			continue
		}

		var (
			q    string
			args []interface{}
			err  error
		)
		switch typ {
		case user.TypeStudent:
			q, args, err = sqlx.In(`SELECT id, first_name, last_name, email FROM students WHERE id IN (?) ORDER BY id`, ids)
		case user.TypeParent:
			q, args, err = sqlx.In(`SELECT id, first_name, last_name, email FROM parents WHERE id IN (?) ORDER BY id`, ids)
		default:
			q, args, err = sqlx.In(`SELECT id, first_name, last_name, email FROM staff WHERE type = ? AND id IN (?) ORDER BY id`, typ, ids)
		}
		if err != nil {
			return nil, errors.Wrap(err, "building contacts query")
		}

		var rows []contactRow
		if err = repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), args...); err != nil {
			return nil, errors.Wrapf(err, "selecting %s contacts", typ)
		}
		for _, r := range rows {
			contacts = append(contacts, directory.Contact{
				Ref:   user.Ref{ID: r.ID, Type: typ},
				Name:  strings.TrimSpace(r.FirstName + " " + r.LastName),
				Email: r.Email,
			})
		}
	}
	return contacts, nil
}
