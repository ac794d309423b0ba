package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// maxJSONBody caps JSON request bodies. Imports have their own limit.
const maxJSONBody = 1 << 20

const notBlankTag = "notblank"

// requestValidator checks request bodies and renders failures in English
// using JSON field names.
type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() *requestValidator {
	validate := validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = validate.RegisterTranslation(notBlankTag, translator,
		func(t ut.Translator) error { return t.Add(notBlankTag, "{0} cannot be blank", true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(notBlankTag, fe.Field())
			return s
		},
	)

	return &requestValidator{validate: validate, translator: translator}
}

// fieldErrors maps JSON field names to messages. It matches
// core.ErrInvalidInput.
type fieldErrors map[string]string

func (fe fieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fe[k])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (fe fieldErrors) Unwrap() error {
	return &core.ValidationError{Message: "invalid request fields"}
}

// Struct validates v and returns fieldErrors on failure.
func (rv *requestValidator) Struct(v any) error {
	err := rv.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := make(fieldErrors, len(verrs))
	for _, e := range verrs {
		fe[e.Field()] = e.Translate(rv.translator)
	}
	return fe
}

// decodeJSON reads a JSON body into dst and validates it. Unknown fields,
// such as a client-supplied grade, are ignored.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytes):
			return err
		case errors.Is(err, io.EOF):
			return &core.ValidationError{Message: "request body is required"}
		default:
			return &core.ValidationError{Message: fmt.Sprintf("invalid JSON body: %v", err)}
		}
	}
	return s.validator.Struct(dst)
}
