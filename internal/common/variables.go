// Package common provides shared configuration, logging and helpers.
//
// Pipeline files may reference variables with the {name} syntax. Values come
// from --var flags and PIPEWATCH_VAR_<NAME> environment variables.
//
// Example:
//
//	Input:  "{input-dir}/a.png"
//	Vars:   {"input-dir": "/data/in"}
//	Output: "/data/in/a.png"
//
// Replacement is case-sensitive. Unresolved references are left in place and
// logged as warnings.
package common

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
)

// varRefPattern matches {name} references
var varRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ReplaceVarReferences replaces every {name} in input with vars[name]
func ReplaceVarReferences(input string, vars map[string]string, logger arbor.ILogger) string {
	if input == "" || !strings.Contains(input, "{") {
		return input
	}

	return varRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := vars[name]; ok {
			return value
		}
		if logger != nil {
			logger.Warn().Str("reference", match).Msg("Unresolved pipeline variable")
		}
		return match
	})
}

// ReplaceInMap replaces references in string values of m, descending into
// nested maps and arrays. The map is mutated in place.
func ReplaceInMap(m map[string]interface{}, vars map[string]string, logger arbor.ILogger) {
	for key, value := range m {
		m[key] = replaceInValue(value, vars, logger)
	}
}

func replaceInValue(value interface{}, vars map[string]string, logger arbor.ILogger) interface{} {
	switch v := value.(type) {
	case string:
		return ReplaceVarReferences(v, vars, logger)
	case map[string]interface{}:
		ReplaceInMap(v, vars, logger)
		return v
	case []interface{}:
		for i, elem := range v {
			v[i] = replaceInValue(elem, vars, logger)
		}
		return v
	default:
		return value
	}
}

// ParseVarFlags turns ["key=value", ...] into a map
func ParseVarFlags(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// EnvVars collects PIPEWATCH_VAR_<NAME> variables. NAME is lower-cased and
// underscores become hyphens, so PIPEWATCH_VAR_INPUT_DIR sets {input-dir}.
func EnvVars() map[string]string {
	const prefix = "PIPEWATCH_VAR_"
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
			continue
		}
		name := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, prefix)), "_", "-")
		vars[name] = value
	}
	return vars
}
