package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/blackwell-systems/zsnap/internal/retention"
)

var (
	validatorInstance *validator.Validate
	validatorOnce     sync.Once
)

// structMessages maps "<yaml path>.<tag>" to a readable error. Slice
// indices in the path are written as "*".
var structMessages = map[string]string{
	"datasets.min":             "no datasets configured",
	"datasets.*.name.required": "missing dataset name",
	"logging.level.oneof":      "unknown level %q (expected debug, info, warn or error)",
	"logging.format.oneof":     "unknown format %q (expected text or json)",
}

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInstance = validator.New()

		// Report fields by their yaml names.
		validatorInstance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validatorInstance
}

// validateStruct runs the struct tag rules on c and converts the first
// violation into a ConfigError.
func validateStruct(c *Config) error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &retention.ConfigError{Field: "config file", Err: err}
	}

	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:] // drop the root struct name
	}

	key := wildcardIndices(field) + "." + fe.Tag()
	msg, ok := structMessages[key]
	if !ok {
		return &retention.ConfigError{Field: field, Err: fmt.Errorf("failed %q validation", fe.Tag())}
	}
	if strings.Contains(msg, "%q") {
		msg = fmt.Sprintf(msg, fe.Value())
	}
	return &retention.ConfigError{Field: field, Err: errors.New(msg)}
}

// wildcardIndices turns "datasets[2].name" into "datasets.*.name".
func wildcardIndices(namespace string) string {
	path := strings.ReplaceAll(namespace, "[", ".")
	path = strings.ReplaceAll(path, "]", "")

	parts := strings.Split(path, ".")
	for i, part := range parts {
		if _, err := strconv.Atoi(part); err == nil {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, ".")
}
