// Package resolver turns a parsed job document into live values. It walks the
// tag model depth-first in document order, substitutes parameters, builds
// each provider type once per run and invokes functions with their resolved
// arguments. Function results come back unevaluated: a stream returned by a
// function is not pulled until the caller drains it.
package resolver
