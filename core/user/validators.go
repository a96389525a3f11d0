package user

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ecole/core"
)

var (
	userTypeTag  = "usertype"
	userTypeText = "invalid user type"
)

// InitValidators registers the user validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(userTypeTag, userTypeValidation)
	core.RegisterCustomTranslation(validate, translator, userTypeTag, userTypeText)
}

// userTypeValidation checks that the field holds one of AllTypes
func userTypeValidation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case Type:
		return v.IsValid()
	case string:
		return Type(v).IsValid()
	}
	return false
}
