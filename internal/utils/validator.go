package utils

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/tinysteps-edu/dashboard-service/internal/errors"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
)

var (
	isoDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	monthKeyRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// Validator wraps the struct validator with the service's custom rules.
type Validator struct {
	structValidator *validator.Validate
}

// NewValidator creates the shared validator instance.
func NewValidator() *Validator {
	v := validator.New()
	RegisterCustomValidators(v)
	return &Validator{structValidator: v}
}

// ValidateStruct validates struct tags, converting field errors to the
// service's ValidationErrors type.
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.structValidator.Struct(s); err != nil {
		if ve := apperrors.ToValidationErrors(err); len(ve) > 0 {
			return ve
		}
		return err
	}
	return nil
}

// Custom validation functions

func ValidateUserRole(fl validator.FieldLevel) bool {
	return models.UserRole(fl.Field().String()).Valid()
}

func ValidateStudentStatus(fl validator.FieldLevel) bool {
	return models.StudentStatus(fl.Field().String()).Valid()
}

func ValidateISODate(fl validator.FieldLevel) bool {
	return isoDateRe.MatchString(fl.Field().String())
}

func ValidateMonthKey(fl validator.FieldLevel) bool {
	return monthKeyRe.MatchString(fl.Field().String())
}

func ValidateProgress(fl validator.FieldLevel) bool {
	p := fl.Field().Int()
	return p >= 0 && p <= 100
}

// RegisterCustomValidators registers all custom validators
func RegisterCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("user_role", ValidateUserRole)
	validate.RegisterValidation("student_status", ValidateStudentStatus)
	validate.RegisterValidation("iso_date", ValidateISODate)
	validate.RegisterValidation("month_key", ValidateMonthKey)
	validate.RegisterValidation("progress", ValidateProgress)

	// Register custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
