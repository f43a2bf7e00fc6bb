package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("CHAINORCH_HOME", "/var/lib/chainorch")
	t.Setenv("NODE_PORT", "9000")

	var testCases = []struct {
		description string
		input       string
		expect      string
	}{
		{description: "no expressions", input: "url: http://localhost:8080", expect: "url: http://localhost:8080"},
		{description: "single", input: "baseURL: ${env.CHAINORCH_HOME}/store", expect: "baseURL: /var/lib/chainorch/store"},
		{description: "several", input: "${env.CHAINORCH_HOME}:${env.NODE_PORT}", expect: "/var/lib/chainorch:9000"},
		{description: "unset", input: "pid: ${env.CHAINORCH_UNSET_VAR}", expect: "pid: "},
		{description: "invalid name kept", input: "${env.NODE-PORT}", expect: "${env.NODE-PORT}"},
		{description: "unterminated kept", input: "${env.NODE_PORT", expect: "${env.NODE_PORT"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			assert.Equal(t, testCase.expect, expandEnv(testCase.input))
		})
	}
}
