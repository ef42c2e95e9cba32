// Package gemini provides an implementation of the generation.ScriptGenerator
// interface that uses Google's Gemini API to write video scripts.
//
// This package is an infrastructure adapter: it translates between the
// application's script types and the Gemini API without exposing the details
// of the external service to the task engine.
//
// Every model call runs inside a circuit breaker, and the breaker-guarded call
// is retried with the AI retry preset from package resilience. Content
// blocked by safety filters and unparseable responses are never retried.
package gemini
