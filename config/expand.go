package config

import (
	"os"
	"regexp"
)

var envExpr = regexp.MustCompile(`\$\{env\.([A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${env.NAME} with the NAME environment variable, unset
// variables expand to "". Malformed expressions are left as written.
func expandEnv(document string) string {
	return envExpr.ReplaceAllStringFunc(document, func(expr string) string {
		return os.Getenv(envExpr.FindStringSubmatch(expr)[1])
	})
}
