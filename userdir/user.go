// Package userdir is the user directory the agent manages: the user model, a
// bbolt-backed store, and a small REST server and client so the directory can
// run as a separate service.
package userdir

import (
	"context"
	"strings"

	"github.com/m4xw311/dialagent/errors"
)

var (
	ErrNotFound    = errors.Sentinel("user not found")
	ErrInvalidUser = errors.Sentinel("invalid user")
)

type Address struct {
	Country   string `json:"country" yaml:"country" jsonschema_description:"Country of residence."`
	City      string `json:"city" yaml:"city" jsonschema_description:"City."`
	Street    string `json:"street" yaml:"street" jsonschema_description:"Street name."`
	FlatHouse string `json:"flat_house" yaml:"flat_house" jsonschema_description:"Flat or house number."`
}

type User struct {
	ID          int64    `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Surname     string   `json:"surname" yaml:"surname"`
	Email       string   `json:"email" yaml:"email"`
	Phone       string   `json:"phone,omitempty" yaml:"phone,omitempty"`
	DateOfBirth string   `json:"date_of_birth,omitempty" yaml:"date_of_birth,omitempty"`
	Address     *Address `json:"address,omitempty" yaml:"address,omitempty"`
	Gender      string   `json:"gender,omitempty" yaml:"gender,omitempty"`
	Company     string   `json:"company,omitempty" yaml:"company,omitempty"`
	Salary      float64  `json:"salary,omitempty" yaml:"salary,omitempty"`
	AboutMe     string   `json:"about_me,omitempty" yaml:"about_me,omitempty"`
}

// UserCreate carries the fields accepted when adding a user.
type UserCreate struct {
	Name        string   `json:"name" jsonschema_description:"First name."`
	Surname     string   `json:"surname" jsonschema_description:"Last name."`
	Email       string   `json:"email,omitempty" jsonschema_description:"Email address."`
	Phone       string   `json:"phone,omitempty" jsonschema_description:"Phone number."`
	DateOfBirth string   `json:"date_of_birth,omitempty" jsonschema_description:"Date of birth, YYYY-MM-DD."`
	Address     *Address `json:"address,omitempty" jsonschema_description:"Postal address."`
	Gender      string   `json:"gender,omitempty" jsonschema_description:"Gender."`
	Company     string   `json:"company,omitempty" jsonschema_description:"Employer."`
	Salary      float64  `json:"salary,omitempty" jsonschema_description:"Yearly salary."`
	AboutMe     string   `json:"about_me,omitempty" jsonschema_description:"Free form biography."`
}

func (c UserCreate) Validate() error {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Surname) == "" {
		return errors.Wrapf(ErrInvalidUser, "name and surname are required")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return errors.Wrapf(ErrInvalidUser, "email %q is not an address", c.Email)
	}
	return nil
}

// UserUpdate is a partial update. Nil fields are left unchanged.
type UserUpdate struct {
	Name        *string  `json:"name,omitempty" jsonschema_description:"New first name."`
	Surname     *string  `json:"surname,omitempty" jsonschema_description:"New last name."`
	Email       *string  `json:"email,omitempty" jsonschema_description:"New email address."`
	Phone       *string  `json:"phone,omitempty" jsonschema_description:"New phone number."`
	DateOfBirth *string  `json:"date_of_birth,omitempty" jsonschema_description:"New date of birth."`
	Address     *Address `json:"address,omitempty" jsonschema_description:"New postal address."`
	Gender      *string  `json:"gender,omitempty" jsonschema_description:"New gender."`
	Company     *string  `json:"company,omitempty" jsonschema_description:"New employer."`
	Salary      *float64 `json:"salary,omitempty" jsonschema_description:"New yearly salary."`
	AboutMe     *string  `json:"about_me,omitempty" jsonschema_description:"New biography."`
}

// Apply returns u with the update applied.
func (upd UserUpdate) Apply(u User) User {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&u.Name, upd.Name)
	set(&u.Surname, upd.Surname)
	set(&u.Email, upd.Email)
	set(&u.Phone, upd.Phone)
	set(&u.DateOfBirth, upd.DateOfBirth)
	set(&u.Gender, upd.Gender)
	set(&u.Company, upd.Company)
	set(&u.AboutMe, upd.AboutMe)
	if upd.Address != nil {
		addr := *upd.Address
		u.Address = &addr
	}
	if upd.Salary != nil {
		u.Salary = *upd.Salary
	}
	return u
}

// SearchQuery matches users by case-insensitive substring. Empty fields are
// ignored and every non-empty field must match.
type SearchQuery struct {
	Name    string `json:"name,omitempty" jsonschema_description:"Substring of the first name."`
	Surname string `json:"surname,omitempty" jsonschema_description:"Substring of the last name."`
	Email   string `json:"email,omitempty" jsonschema_description:"Substring of the email address."`
	Gender  string `json:"gender,omitempty" jsonschema_description:"Gender to match."`
}

func (q SearchQuery) Matches(u User) bool {
	match := func(value, want string) bool {
		return want == "" || strings.Contains(strings.ToLower(value), strings.ToLower(want))
	}
	return match(u.Name, q.Name) &&
		match(u.Surname, q.Surname) &&
		match(u.Email, q.Email) &&
		(q.Gender == "" || strings.EqualFold(u.Gender, q.Gender))
}

// Directory is the set of user operations exposed to the agent's tools.
type Directory interface {
	Add(ctx context.Context, in UserCreate) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	Search(ctx context.Context, q SearchQuery) ([]User, error)
	Update(ctx context.Context, id int64, upd UserUpdate) (User, error)
	Delete(ctx context.Context, id int64) error
}

func newUser(id int64, in UserCreate) User {
	return User{
		ID:          id,
		Name:        in.Name,
		Surname:     in.Surname,
		Email:       in.Email,
		Phone:       in.Phone,
		DateOfBirth: in.DateOfBirth,
		Address:     in.Address,
		Gender:      in.Gender,
		Company:     in.Company,
		Salary:      in.Salary,
		AboutMe:     in.AboutMe,
	}
}
