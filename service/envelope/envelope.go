// Package envelope encodes query/mutation requests and decodes the JSON
// envelope returned by the remote service in one place.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/viant/chainorch/model"
)

// ErrMalformed is returned when a response body is not valid JSON
var ErrMalformed = errors.New("malformed envelope")

// Request represents a query or mutation request
type Request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// Body returns a body builder producing a fresh payload per attempt
func Body(query string, variables map[string]interface{}) func() ([]byte, error) {
	return func() ([]byte, error) {
		return json.Marshal(&Request{Query: query, Variables: variables})
	}
}

// Envelope is a decoded response
type Envelope struct {
	Raw    []byte
	Data   gjson.Result
	Errors []string
}

// Decode parses body into an Envelope
func Decode(body []byte) (*Envelope, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, truncate(string(body), 200))
	}
	parsed := gjson.ParseBytes(body)
	ret := &Envelope{Raw: body, Data: parsed.Get("data")}
	parsed.Get("errors").ForEach(func(_, value gjson.Result) bool {
		if message := value.Get("message"); message.Exists() {
			ret.Errors = append(ret.Errors, message.String())
		} else {
			ret.Errors = append(ret.Errors, value.String())
		}
		return true
	})
	return ret, nil
}

// Err returns remote errors carried by the envelope
func (e *Envelope) Err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrRemoteRejected, strings.Join(e.Errors, "; "))
}

// Get returns a value under data using a gjson path
func (e *Envelope) Get(path string) gjson.Result {
	return e.Data.Get(path)
}

// Strings returns string elements of the array under path
func (e *Envelope) Strings(path string) []string {
	var ret []string
	for _, item := range e.Data.Get(path).Array() {
		if value := strings.TrimSpace(item.String()); value != "" {
			ret = append(ret, value)
		}
	}
	return ret
}

// Pairs maps keyField to valueField across objects of the array under path
func (e *Envelope) Pairs(path, keyField, valueField string) map[string]string {
	ret := map[string]string{}
	for _, item := range e.Data.Get(path).Array() {
		key := item.Get(keyField).String()
		if key == "" {
			continue
		}
		ret[key] = item.Get(valueField).String()
	}
	return ret
}

// Receipt returns data when it is a string, otherwise the string under field
func (e *Envelope) Receipt(field string) string {
	if e.Data.Type == gjson.String {
		return e.Data.String()
	}
	if value := e.Data.Get(field); value.Type == gjson.String {
		return value.String()
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// ApplicationURL returns the endpoint of application appID on chainID
func ApplicationURL(baseURL, chainID, appID string) string {
	return strings.TrimRight(baseURL, "/") + "/chains/" + chainID + "/applications/" + appID
}
