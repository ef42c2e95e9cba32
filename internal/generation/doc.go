// Package generation defines the boundary between the task engine and the
// external AI/LLM services that write video scripts. A ScriptGenerator turns
// a topic into a Script of narrated scenes; the Gemini-backed implementation
// lives in platform/gemini so nothing here depends on a specific provider.
package generation
