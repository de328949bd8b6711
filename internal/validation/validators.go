package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/trackwise/assistant/internal/models"
)

// Validate is the shared validator instance
var Validate *validator.Validate

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("entity_type", validateEntityType); err != nil {
		panic(fmt.Sprintf("failed to register entity_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("intent_type", validateIntentType); err != nil {
		panic(fmt.Sprintf("failed to register intent_type validator: %v", err))
	}
}

func validateEntityType(fl validator.FieldLevel) bool {
	return models.ValidEntityType(models.EntityType(fl.Field().String()))
}

func validateIntentType(fl validator.FieldLevel) bool {
	return models.ValidIntentType(models.IntentType(fl.Field().String()))
}

// SanitizeText trims whitespace and removes control characters except
// newline and tab
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateQuery checks a chat query for emptiness and oversize before any
// rate limiting or classification work is spent on it.
func ValidateQuery(text string, maxChars int) error {
	cleaned := SanitizeText(text)
	if cleaned == "" {
		return fmt.Errorf("query must not be empty")
	}
	if maxChars > 0 && len(cleaned) > maxChars {
		return fmt.Errorf("query exceeds maximum length of %d characters", maxChars)
	}
	return nil
}
