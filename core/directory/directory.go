package directory

import (
	"context"
	"net/mail"

	"github.com/trezcool/ecole/core/user"
)

// Contact is how a user can be reached out of band.
type Contact struct {
	Ref   user.Ref `json:"ref"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
}

func (c Contact) HasEmail() bool {
	return c.Email != ""
}

func (c Contact) Address() mail.Address {
	return mail.Address{Name: c.Name, Address: c.Email}
}

type Repository interface {
	// Contacts returns the contacts of the known refs; unknown refs are skipped.
	Contacts(ctx context.Context, refs []user.Ref) ([]Contact, error)
}
