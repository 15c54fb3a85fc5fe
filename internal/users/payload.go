package users

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-user-cache/repository"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var emailRules = []validation.Rule{
	validation.Required,
	validation.RuneLength(1, EmailMaxLength),
	is.EmailFormat,
}

// Validate checks the stored fields of u.
func (u User) Validate() error {
	err := validation.ValidateStruct(&u,
		validation.Field(&u.Email, emailRules...),
	)
	if err != nil {
		return invalid(err, "invalid user")
	}
	return nil
}

func invalid(err error, message string) error {
	return goerrors.FromOzzoValidation(err, message).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(repository.TextCodeValidationFailed)
}

// CreateUser is the body of a create request.
type CreateUser struct {
	Email string `json:"email"`
}

// Validate implements repositorycache.Validatable.
func (in CreateUser) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, emailRules...),
	)
	if err != nil {
		return invalid(err, "invalid user payload")
	}
	return nil
}

// Record converts the payload into a new, unsaved User.
func (in CreateUser) Record() User {
	return User{Email: strings.TrimSpace(in.Email)}
}

// UpdateUser is the body of an update request. Nil fields were not sent and
// are left untouched.
type UpdateUser struct {
	Email *string `json:"email,omitempty"`
}

// Validate implements repositorycache.Validatable.
func (in UpdateUser) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.When(in.Email != nil, emailRules...)),
	)
	if err != nil {
		return invalid(err, "invalid user payload")
	}
	return nil
}

// Apply implements repository.Patch. It copies the fields present in the
// payload onto u and returns the columns that changed.
func (in UpdateUser) Apply(u *User) []string {
	var columns []string

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != u.Email {
			u.Email = email
			columns = append(columns, "email")
		}
	}

	return columns
}
