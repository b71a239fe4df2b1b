package validator

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/go-playground/validator"
)

var (
	global     *validator.Validate
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	slugRegex  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", validatePhone)
	_ = v.RegisterValidation("slug", validateSlug)
	_ = v.RegisterValidation("future", validateFutureDate)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

func validateSlug(fl validator.FieldLevel) bool {
	return slugRegex.MatchString(fl.Field().String())
}

func validateFutureDate(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	return ok && t.After(time.Now())
}

func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "phone":
		msg = "Invalid phone number"
	case "slug":
		msg = ErrInvalidFormat
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
	case "min":
		msg = ErrFieldBelowMinLen
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "email":
		msg = "Invalid email address"
	case "future":
		msg = "Date must be in the future"
	default:
		msg = ErrUnknownValidation
	}
	return errors.New(msg + ": " + ve.Namespace())
}
