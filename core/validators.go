package core

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// DateLayout is the layout of ISO date keys ("2024-03-01").
const DateLayout = "2006-01-02"

var (
	// custom validation tags & texts
	nisnTag   = "nisn"
	nisnText  = "{0} must only contain digits"
	nisnRegex = regexp.MustCompile(`^[0-9]+$`)

	genderTag  = "gender"
	genderText = "{0} must be one of L or P"

	dateKeyTag  = "datekey"
	dateKeyText = "{0} must be a date formatted as YYYY-MM-DD"

	statusTag  = "status"
	statusText = "{0} must be one of S, I, A, H, hadir, sakit, izin, alpha or terlambat"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(nisnTag, nisnValidation)
	RegisterCustomTranslation(validate, translator, nisnTag, nisnText)

	_ = validate.RegisterValidation(genderTag, genderValidation)
	RegisterCustomTranslation(validate, translator, genderTag, genderText)

	_ = validate.RegisterValidation(dateKeyTag, dateKeyValidation)
	RegisterCustomTranslation(validate, translator, dateKeyTag, dateKeyText)

	_ = validate.RegisterValidation(statusTag, statusValidation)
	RegisterCustomTranslation(validate, translator, statusTag, statusText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
// "{0}" in text is replaced by the field name.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// TranslateValidationErrors turns validator errors into a *ValidationError carrying translated field errors.
// Any other error is returned as is.
func TranslateValidationErrors(err error, translator ut.Translator) error {
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	flds := make([]FieldError, 0, len(vErrs))
	for _, vErr := range vErrs {
		msg := vErr.Error()
		if translator != nil {
			msg = vErr.Translate(translator)
		}
		flds = append(flds, FieldError{Field: vErr.Field(), Error: msg})
	}
	return NewValidationError(nil, flds...)
}

// Custom Global Validators

func nisnValidation(fl validator.FieldLevel) bool {
	return nisnRegex.MatchString(fl.Field().String())
}

func genderValidation(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "L", "P":
		return true
	}
	return false
}

// statusValidation accepts the attendance statuses, case-sensitively.
func statusValidation(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "S", "I", "A", "H", "hadir", "sakit", "izin", "alpha", "terlambat":
		return true
	}
	return false
}

func dateKeyValidation(fl validator.FieldLevel) bool {
	return IsDateKey(fl.Field().String())
}

// IsDateKey reports whether s is a valid "YYYY-MM-DD" date.
func IsDateKey(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
