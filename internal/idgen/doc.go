// Package idgen wraps the identifier generators (full UUIDs and short
// placeholder request ids) so that they can be stubbed in tests. Callers
// treat identifiers as opaque strings.
package idgen
