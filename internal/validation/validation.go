// Package validation проверяет входные DTO HTTP-слоя тегами go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout задаёт формат даты ручного запуска выплат.
const DateLayout = "2006-01-02"

var (
	currencyRe = regexp.MustCompile(`^[a-zA-Z]{3}$`)
	refRe      = regexp.MustCompile(`^[A-Za-z0-9_\-.:]{1,255}$`)
)

var (
	once     sync.Once
	instance *validator.Validate
)

// FieldError описывает ошибку одного поля запроса.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Errors содержит ошибки всех полей запроса.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, f := range e {
		parts = append(parts, f.Field+": "+f.Rule)
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		mustRegister(v, "currency", func(fl validator.FieldLevel) bool {
			return currencyRe.MatchString(fl.Field().String())
		})
		mustRegister(v, "ref", func(fl validator.FieldLevel) bool {
			return refRe.MatchString(fl.Field().String())
		})
		mustRegister(v, "date", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(DateLayout, fl.Field().String())
			return err == nil
		})
		instance = v
	})
	return instance
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Struct проверяет структуру и возвращает Errors при нарушении правил.
func Struct(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	res := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		res = append(res, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return res
}

// ParseDate разбирает дату YYYY-MM-DD как полночь UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
