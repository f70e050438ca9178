// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"tally/internal/models"
	"tally/internal/uuid"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("account_type", validateAccountType)
		_ = v.RegisterValidation("record_id", validateRecordID)
	}
}

func validateAccountType(fl validator.FieldLevel) bool {
	_, ok := models.ParseAccountType(fl.Field().String())
	return ok
}

func validateRecordID(fl validator.FieldLevel) bool {
	return uuid.IsValid(fl.Field().String())
}
