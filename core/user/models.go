package user

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the profile of a user; each type lives in its own directory table.
type Type string

const (
	TypeStudent       Type = "eleve"
	TypeTeacher       Type = "professeur"
	TypeAdministrator Type = "administrateur"
	TypeSchoolLife    Type = "vie_scolaire"
	TypeParent        Type = "parent"
)

var (
	AllTypes   = []Type{TypeStudent, TypeTeacher, TypeAdministrator, TypeSchoolLife, TypeParent}
	StaffTypes = []Type{TypeTeacher, TypeAdministrator, TypeSchoolLife}
)

func (t Type) IsValid() bool {
	for _, typ := range AllTypes {
		if t == typ {
			return true
		}
	}
	return false
}

func (t Type) IsStaff() bool {
	for _, typ := range StaffTypes {
		if t == typ {
			return true
		}
	}
	return false
}

// ParseType cleans and validates a user type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid user type %q", s)
	}
	return t, nil
}

// Ref identifies a user: IDs are only unique per Type.
type Ref struct {
	ID   int64 `json:"id" db:"user_id" validate:"required,gt=0"`
	Type Type  `json:"type" db:"user_type" validate:"required,usertype"`
}

func (r Ref) String() string {
	return string(r.Type) + ":" + strconv.FormatInt(r.ID, 10)
}

// Principal is the authenticated user performing an operation.
type Principal struct {
	ID   int64  `json:"id"`
	Type Type   `json:"type"`
	Name string `json:"name,omitempty"`
}

func (p Principal) Ref() Ref {
	return Ref{ID: p.ID, Type: p.Type}
}

func (p Principal) IsZero() bool {
	return p.ID == 0 || p.Type == ""
}

// Is reports whether the principal is the user identified by ref.
func (p Principal) Is(ref Ref) bool {
	return p.ID == ref.ID && p.Type == ref.Type
}

// DedupRefs drops duplicates and every ref in exclude, keeping the first occurrence order.
func DedupRefs(refs []Ref, exclude ...Ref) []Ref {
	seen := make(map[Ref]struct{}, len(refs)+len(exclude))
	for _, ex := range exclude {
		seen[ex] = struct{}{}
	}
	out := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
