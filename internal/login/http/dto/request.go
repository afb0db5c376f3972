// Package dto defines the request and response shapes of the login endpoints.
package dto

import (
	validation "github.com/jellydator/validation"

	appValidation "github.com/allisson/gridgate/internal/validation"
)

// StartLoginRequest is the JSON body of a local credential login.
type StartLoginRequest struct {
	FirstName     string `json:"first_name"`
	SurName       string `json:"sur_name"`
	Password      string `json:"password"`
	StartLocation string `json:"start_location"`
}

// Validate implements validation for StartLoginRequest.
func (r StartLoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName,
			validation.Required.Error("first name is required"),
			appValidation.NotBlank,
		),
		validation.Field(&r.SurName,
			validation.Required.Error("sur name is required"),
			appValidation.NotBlank,
		),
		validation.Field(&r.Password,
			validation.Required.Error("password is required"),
		),
	)
}
