package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/joho/godotenv"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// envFilePath is overridable in tests; production always looks for ".env"
// in the current working directory.
var envFilePath = ".env"

// ResolveFile reads path and substitutes ${VAR_NAME} placeholders, resolving
// each name first against a loaded .env file, then against the process
// environment. Missing variables are a hard error: a config referencing a
// credential that isn't set anywhere must fail loudly at startup, not
// silently produce "${PROJECT_X_API_KEY}" as a literal string.
func ResolveFile(path string) (io.Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	envVars, _ := godotenv.Read(envFilePath) // missing .env file is fine

	var resolveErr error
	substituted := placeholderPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := placeholderPattern.FindSubmatch(match)[1]
		if v, ok := envVars[string(name)]; ok {
			return []byte(v)
		}
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		if resolveErr == nil {
			resolveErr = fmt.Errorf("environment variable %q not found (checked %s and process environment)", name, envFilePath)
		}
		return match
	})
	if resolveErr != nil {
		return nil, resolveErr
	}

	return bytes.NewReader(substituted), nil
}
