// Package criteria evaluates dao list parameters against stored entities.
package criteria

import (
	"github.com/viant/chainorch/service/dao"
)

// StatusParameter filters allocation records by lifecycle status
const StatusParameter = "Status"

// FilterByStatus reports whether status satisfies every Status parameter
func FilterByStatus(status string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != StatusParameter {
			continue
		}
		values := parameter.Values()
		if len(values) == 0 {
			continue
		}
		if !contains(values, status) {
			return false
		}
	}
	return true
}

func contains(values []string, candidate string) bool {
	for _, value := range values {
		if value == candidate {
			return true
		}
	}
	return false
}
