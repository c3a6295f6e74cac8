package validator

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterCustom installs the clinic-specific validations on gin's
// binding engine. Call once at startup.
func RegisterCustom() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("clocktime", validClockTime); err != nil {
		return err
	}
	return v.RegisterValidation("workdays", validWorkDays)
}

// validClockTime accepts "HH:MM" wall clock values.
func validClockTime(fl validator.FieldLevel) bool {
	parts := strings.SplitN(fl.Field().String(), ":", 2)
	if len(parts) != 2 {
		return false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return false
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return false
	}
	return true
}

// validWorkDays accepts comma-separated weekday numbers, 0=Sunday.
func validWorkDays(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return false
	}
	for _, tok := range strings.Split(raw, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || d < 0 || d > 6 {
			return false
		}
	}
	return true
}
