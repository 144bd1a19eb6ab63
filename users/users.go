package users

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"golang.org/x/crypto/bcrypt"
)

// RoleType represents the role a principal holds inside the barbershop platform
type RoleType string

const (
	RoleAdmin        RoleType = "admin"        // Platform administrator, not bound to a tenant
	RoleBarber       RoleType = "barber"       // Staff member performing services
	RoleReceptionist RoleType = "receptionist" // Staff member handling the front desk
	RoleClient       RoleType = "client"       // End customer of a barbershop
)

// Roles lists every valid role
var Roles = []RoleType{RoleAdmin, RoleBarber, RoleReceptionist, RoleClient}

// IsStaff reports whether the role belongs to the staff group (barber or receptionist)
func (r RoleType) IsStaff() bool {
	return r == RoleBarber || r == RoleReceptionist
}

// Valid reports whether the role is part of the fixed enum
func (r RoleType) Valid() bool {
	for _, role := range Roles {
		if role == r {
			return true
		}
	}
	return false
}

// User is the principal stored by a CredentialStore.
type User struct {
	ID           string    `json:"id"`                   // Unique identifier for the principal
	Email        string    `json:"email"`                // Lower-cased, unique within a store
	DisplayName  string    `json:"display_name"`         // Name shown by the frontends
	Role         RoleType  `json:"role"`                 // One of Roles
	TenantID     string    `json:"tenant_id,omitempty"`  // Barbershop the principal belongs to, empty for admins
	Phone        string    `json:"phone,omitempty"`      // Contact phone
	Active       bool      `json:"active"`               // Inactive principals cannot log in
	CreatedAt    time.Time `json:"created_at,omitempty"` // Registration time
	PasswordHash string    `json:"-"`                    // bcrypt hash - never serialize
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks the principal invariants: email format, role enum and
// a tenant for every non-admin role.
func (u *User) Validate() error {
	tenantRules := []validation.Rule{}
	if u.Role != RoleAdmin {
		tenantRules = append(tenantRules, validation.Required.Error("is required for non-admin roles"))
	}
	return validation.ValidateStruct(u,
		validation.Field(&u.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&u.Role, validation.Required, validation.By(validRole)),
		validation.Field(&u.TenantID, tenantRules...),
		validation.Field(&u.DisplayName, validation.Length(0, 200)),
	)
}

func validRole(value interface{}) error {
	role, _ := value.(RoleType)
	if !role.Valid() {
		return fmt.Errorf("must be one of %v", Roles)
	}
	return nil
}

// Clone returns a copy the caller may mutate without touching store state
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// ValidatePasswordStrength checks if password meets the registration requirements:
// - At least 6 characters long
// - Contains at least one letter
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters long")
	}

	var (
		hasLetter bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsLetter(char) {
			hasLetter = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasLetter {
		return fmt.Errorf("password must contain at least one letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

// HashPassword hashes with the given bcrypt cost, falling back to bcrypt.DefaultCost when cost is zero
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// unknownPrincipalHashes holds one placeholder hash per bcrypt cost.
var unknownPrincipalHashes sync.Map

// CompareUnknownPrincipal spends a bcrypt comparison of the given cost so a
// lookup miss takes as long as a wrong password.
func CompareUnknownPrincipal(password string, cost int) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, ok := unknownPrincipalHashes.Load(cost)
	if !ok {
		generated, err := HashPassword("no-such-principal", cost)
		if err != nil {
			return
		}
		hash, _ = unknownPrincipalHashes.LoadOrStore(cost, generated)
	}
	CheckPasswordHash(password, hash.(string))
}

func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
