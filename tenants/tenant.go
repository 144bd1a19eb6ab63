package tenants

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Tenant is a barbershop. Non-admin principals belong to exactly one tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (t *Tenant) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Name, validation.Required, validation.Length(2, 120)),
		validation.Field(&t.Address, validation.Length(0, 250)),
		validation.Field(&t.Phone, validation.Length(0, 30)),
	)
}

// Normalize trims user-supplied fields in place.
func (t *Tenant) Normalize() {
	t.Name = strings.TrimSpace(t.Name)
	t.Address = strings.TrimSpace(t.Address)
	t.Phone = strings.TrimSpace(t.Phone)
}
