package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/samber/lo"
)

// Topic names accepted by both Kafka and Pub/Sub.
var reTopic = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]{0,248}$`)

// ErrTranslatorNotFound indicates the requested translator is unavailable.
var ErrTranslatorNotFound = errors.New("translator not found")

// V10Validator implements Validator using go-playground/validator v10.
type V10Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// V10ValidationError maps a field to its translated message.
//
// Keys follow the mapstructure tag when present so they match the keys of the
// JSON backend documents, and fall back to the snake_case field name.
type V10ValidationError map[string]string

// Error implements the error interface.
func (vs V10ValidationError) Error() string {
	if len(vs) == 0 {
		return "validation error"
	}

	b, err := json.Marshal(vs)
	if err != nil {
		return fmt.Sprintf("validation error (failed to marshal: %v)", err)
	}
	return string(b)
}

// Values returns the field error map.
func (vs V10ValidationError) Values() map[string]string {
	return vs
}

// NewV10Validator builds a validator with English messages plus the topic and
// broker rules.
func NewV10Validator() (*V10Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(fieldKey)

	enLang := en.New()
	enTrans, ok := ut.New(enLang, enLang).GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}

	if err := enTranslations.RegisterDefaultTranslations(validate, enTrans); err != nil {
		return nil, err
	}

	for _, r := range rules {
		if err := r.register(validate, enTrans); err != nil {
			return nil, fmt.Errorf("validator: register %s: %w", r.tag, err)
		}
	}

	return &V10Validator{
		validate:   validate,
		translator: enTrans,
	}, nil
}

// Validate validates a struct and returns a V10ValidationError on failure.
func (v *V10Validator) Validate(data any) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(V10ValidationError, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = fe.Translate(v.translator)
	}
	return out
}

func fieldKey(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return lo.SnakeCase(f.Name)
	default:
		return name
	}
}

type rule struct {
	tag     string
	message string
	check   func(string) bool
}

var rules = []rule{
	{
		tag:     "topic",
		message: "{0} must start with a letter and contain only letters, digits, '.', '_' or '-'",
		check:   reTopic.MatchString,
	},
	{
		tag:     "broker",
		message: "{0} must be a host:port broker address",
		check:   isBrokerAddr,
	},
}

func isBrokerAddr(s string) bool {
	host, port, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}

func (r rule) register(validate *validator.Validate, trans ut.Translator) error {
	err := validate.RegisterValidation(r.tag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && r.check(s)
	})
	if err != nil {
		return err
	}

	return validate.RegisterTranslation(r.tag, trans,
		func(t ut.Translator) error {
			return t.Add(r.tag, r.message, false)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(fe.Tag(), fe.Field())
			if err != nil {
				slog.Warn("failed to translate validation error", "tag", fe.Tag(), "error", err)
				return fe.Error()
			}
			return msg
		},
	)
}
