package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/roster"
	"github.com/trezcool/ecole/core/user"
)

type rosterRepository struct {
	exec core.DBExecutor
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(exec core.DBExecutor) *rosterRepository {
	return &rosterRepository{exec: exec}
}

func (repo rosterRepository) DistinctClasses(ctx context.Context) ([]string, error) {
	classes := make([]string, 0)
	q := `SELECT DISTINCT class FROM students WHERE class <> '' ORDER BY class`
	if err := repo.exec.SelectContext(ctx, &classes, q); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}
	return classes, nil
}

func (repo rosterRepository) refs(ctx context.Context, typ user.Type, q string, args ...interface{}) ([]user.Ref, error) {
	var ids []int64
	if err := repo.exec.SelectContext(ctx, &ids, repo.exec.Rebind(q), args...); err != nil {
		return nil, err
	}
	refs := make([]user.Ref, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, user.Ref{ID: id, Type: typ})
	}
	return refs, nil
}

func (repo rosterRepository) ClassStudents(ctx context.Context, class string) ([]user.Ref, error) {
	refs, err := repo.refs(ctx, user.TypeStudent, `SELECT id FROM students WHERE class = ? ORDER BY id`, class)
	if err != nil {
		return nil, errors.Wrap(err, "selecting class students")
	}
	return refs, nil
}

func (repo rosterRepository) ClassParents(ctx context.Context, class string) ([]user.Ref, error) {
	q := `SELECT DISTINCT ps.parent_id FROM parent_students ps
		JOIN students s ON s.id = ps.student_id
		WHERE s.class = ?
		ORDER BY ps.parent_id`
	refs, err := repo.refs(ctx, user.TypeParent, q, class)
	if err != nil {
		return nil, errors.Wrap(err, "selecting class parents")
	}
	return refs, nil
}
