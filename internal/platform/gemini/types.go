package gemini

// promptData represents the data passed to the prompt template
type promptData struct {
	Topic           string
	Style           string
	DurationSeconds int
	SceneCount      int
}

// defaultPromptTemplate is used when no prompt template path is configured.
const defaultPromptTemplate = `You are writing the script for a short narrated video.

Topic: {{.Topic}}
{{- if .Style}}
Style: {{.Style}}
{{- end}}
Target length: {{.DurationSeconds}} seconds across {{.SceneCount}} scenes.

Respond with JSON only, matching this shape:
{"title": string, "scenes": [{"narration": string, "visual": string, "duration_seconds": number}]}

"visual" is a short stock footage search query for the scene.
The scene durations must add up to roughly the target length.`
