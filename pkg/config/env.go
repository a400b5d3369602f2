package config

import (
	"fmt"
	"os"
	"strconv"
)

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(component, key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, NewValidationError(component, "", key, fmt.Errorf("%w: %q", ErrInvalidValue, val))
	}
	return n, nil
}

func getEnvFloat(component, key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, NewValidationError(component, "", key, fmt.Errorf("%w: %q", ErrInvalidValue, val))
	}
	return f, nil
}

func getEnvBool(component, key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, NewValidationError(component, "", key, fmt.Errorf("%w: %q", ErrInvalidValue, val))
	}
	return b, nil
}
