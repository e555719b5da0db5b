// Package config provides configuration management for the allocation
// research toolkit.
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	v.RegisterValidation("environment", validateEnvironment)
	v.RegisterValidation("loglevel", validateLogLevel)
	v.RegisterValidation("mapmethod", validateMappingMethod)
	v.RegisterValidation("normmethod", validateNormalizeMethod)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateMappingMethod validates the signal-to-weight mapping method name
func validateMappingMethod(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "step", "linear", "sigmoid", "piecewise", "spline", "power":
		return true
	default:
		return false
	}
}

// validateNormalizeMethod validates the signal normalization method name
func validateNormalizeMethod(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "robust_z", "standard_z", "rolling_z", "percentile", "minmax":
		return true
	default:
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	startDate, err := time.Parse("2006-01-02", cfg.Data.StartDate)
	if err != nil {
		return fmt.Errorf("invalid data start_date format: %w", err)
	}
	endDate, err := time.Parse("2006-01-02", cfg.Data.EndDate)
	if err != nil {
		return fmt.Errorf("invalid data end_date format: %w", err)
	}
	if !startDate.Before(endDate) {
		return fmt.Errorf("data start_date must be before end_date")
	}

	if cfg.Simulation.EqMin > cfg.Simulation.EqMax {
		return fmt.Errorf("simulation eq_min cannot exceed eq_max")
	}
	if cfg.Optimization.Constraints.EqMin > cfg.Optimization.Constraints.EqMax && cfg.Optimization.Constraints.EqMax > 0 {
		return fmt.Errorf("constraint eq_min cannot exceed eq_max")
	}
	if min, max := cfg.Optimization.Constraints.SigWtMin, cfg.Optimization.Constraints.SigWtMax; max > 0 && min > max {
		return fmt.Errorf("constraint sig_wt_min cannot exceed sig_wt_max")
	}

	if cfg.Mapping.Method == "step" {
		if len(cfg.Mapping.Thresholds) > 0 && len(cfg.Mapping.Levels) != len(cfg.Mapping.Thresholds)+1 {
			return fmt.Errorf("step mapping needs exactly one more level than thresholds")
		}
		if !sort.Float64sAreSorted(cfg.Mapping.Thresholds) {
			return fmt.Errorf("step mapping thresholds must be ascending")
		}
	}

	if cfg.PersistenceEnabled() {
		if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
			return fmt.Errorf("max_idle_connections cannot exceed max_connections")
		}
		if cfg.IsProduction() && cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
		}
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "mapmethod":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: step, linear, sigmoid, piecewise, spline, power\n", field)
		case "normmethod":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: robust_z, standard_z, rolling_z, percentile, minmax\n", field)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}
