// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

// ErrInvalid оборачивается всеми ошибками валидации.
var ErrInvalid = errors.New("validation failed")

// FieldError описывает первое поле, не прошедшее проверку.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (e *FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: must satisfy %s=%s", e.Field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s: must satisfy %s", e.Field, e.Tag)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalid
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// decimal.Decimal сравнивается как число, чтобы работали gt/gte/lt.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// Struct проверяет структуру по тегам validate. Возвращается только первое нарушение
// в порядке объявления полей.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

// Slug строит URL-представление названия.
func Slug(name string) string {
	return slug.Make(name)
}
