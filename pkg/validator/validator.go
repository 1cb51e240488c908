package validator

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func ValidateStruct(s interface{}) error {
	return getValidator().Struct(s)
}

// TranslateError flattens validation failures into namespace -> message.
func TranslateError(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, fe := range verrs {
		out[fe.Namespace()] = fe.Tag()
	}
	return out
}
