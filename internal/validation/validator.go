// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package validation wraps go-playground/validator v10 behind a
// thread-safe singleton with domain validators for the closed enums
// (resource, action, scope, device type).
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/staynest/stayguard/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed field check.
type FieldError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Param   string      `json:"param,omitempty"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

func (e FieldError) Error() string { return e.Message }

// RequestError is the collection of failures for one request.
type RequestError struct {
	Fields []FieldError
}

func (e *RequestError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// Details returns a serializable error payload for API responses.
func (e *RequestError) Details() []FieldError {
	return e.Fields
}

// Validator returns the shared instance, registering domain validators
// on first use.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		mustRegister("resource", func(fl validator.FieldLevel) bool {
			return models.Resource(fl.Field().String()).IsValid()
		})
		mustRegister("authz_action", func(fl validator.FieldLevel) bool {
			return models.Action(fl.Field().String()).IsValid()
		})
		mustRegister("scope", func(fl validator.FieldLevel) bool {
			_, ok := models.ParseScope(fl.Field().String())
			return ok
		})
		mustRegister("device_type", func(fl validator.FieldLevel) bool {
			return models.DeviceType(fl.Field().String()).IsValid()
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validator %q: %v", tag, err))
	}
}

// ValidateStruct validates a request struct. Returns nil on success.
func ValidateStruct(s interface{}) *RequestError {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestError{Fields: []FieldError{{
			Field:   "unknown",
			Tag:     "unknown",
			Message: err.Error(),
		}}}
	}

	fields := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: translate(fe),
		}
	}
	return &RequestError{Fields: fields}
}

var messageTemplates = map[string]string{
	"required":     "%s is required",
	"email":        "%s must be a valid email address",
	"uuid":         "%s must be a valid UUID",
	"ip":           "%s must be a valid IP address",
	"resource":     "%s is not a known resource",
	"authz_action": "%s is not a known action",
	"scope":        "%s is not a known scope",
	"device_type":  "%s is not a known device type",
}

var paramTemplates = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be at least %s",
	"lte":   "%s must be at most %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
	"len":   "%s must have length %s",
}

func translate(fe validator.FieldError) string {
	if tmpl, ok := messageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field())
	}
	if tmpl, ok := paramTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
