package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/guelfi/BarbeariaSaaS/users"
)

// Credentials is a login attempt.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims and lower-cases the email in place.
func (c *Credentials) Normalize() {
	c.Email = users.NormalizeEmail(c.Email)
}

func (c *Credentials) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&c.Password, validation.Required, validation.Length(1, 128)),
	)
}

// ClientRegistration is a self-service sign-up from the client app.
type ClientRegistration struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
	TenantID        string `json:"tenantId"`
}

func (r *ClientRegistration) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = users.NormalizeEmail(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.TenantID = strings.TrimSpace(r.TenantID)
}

func (r *ClientRegistration) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Phone, validation.Length(0, 30)),
		validation.Field(&r.Password, validation.Required, validation.By(passwordStrength)),
		validation.Field(&r.ConfirmPassword, validation.By(matches(r.Password))),
		validation.Field(&r.TenantID, validation.Required),
	)
}

// BarbershopRegistration creates a barbershop together with its owning barber.
type BarbershopRegistration struct {
	ShopName  string `json:"shopName"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	OwnerName string `json:"ownerName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (r *BarbershopRegistration) Normalize() {
	r.ShopName = strings.TrimSpace(r.ShopName)
	r.Address = strings.TrimSpace(r.Address)
	r.Phone = strings.TrimSpace(r.Phone)
	r.OwnerName = strings.TrimSpace(r.OwnerName)
	r.Email = users.NormalizeEmail(r.Email)
}

func (r *BarbershopRegistration) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ShopName, validation.Required, validation.Length(2, 120)),
		validation.Field(&r.Address, validation.Length(0, 250)),
		validation.Field(&r.Phone, validation.Length(0, 30)),
		validation.Field(&r.OwnerName, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.By(passwordStrength)),
	)
}

func passwordStrength(value interface{}) error {
	password, _ := value.(string)
	if password == "" {
		return nil
	}
	return users.ValidatePasswordStrength(password)
}

func matches(password string) validation.RuleFunc {
	return func(value interface{}) error {
		confirm, _ := value.(string)
		if confirm != "" && confirm != password {
			return errors.New("passwords do not match")
		}
		return nil
	}
}
