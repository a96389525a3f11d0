package messaging

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ecole/core"
)

var (
	convTypeTag  = "convtype"
	convTypeText = "invalid conversation type"

	importanceTag  = "importance"
	importanceText = "importance must be one of normal, important or urgent"

	folderTag  = "folder"
	folderText = "folder must be one of reception, archives or corbeille"
)

// InitValidators registers the messaging validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(convTypeTag, convTypeValidation)
	core.RegisterCustomTranslation(validate, translator, convTypeTag, convTypeText)

	_ = validate.RegisterValidation(importanceTag, importanceValidation)
	core.RegisterCustomTranslation(validate, translator, importanceTag, importanceText)

	_ = validate.RegisterValidation(folderTag, folderValidation)
	core.RegisterCustomTranslation(validate, translator, folderTag, folderText)
}

// Custom Validators

func convTypeValidation(fl validator.FieldLevel) bool {
	return ConversationType(fl.Field().String()).IsValid()
}

func importanceValidation(fl validator.FieldLevel) bool {
	return Importance(fl.Field().String()).IsValid()
}

func folderValidation(fl validator.FieldLevel) bool {
	return Folder(fl.Field().String()).IsValid()
}
