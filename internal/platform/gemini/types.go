package gemini

// analysisPrompt asks for a JSON object matching responseSchema.
const analysisPrompt = `Listen to the attached recording and describe the speaker's voice.
Cover pitch, pace, timbre, accent, emotional tone and recording quality.
Do not transcribe the speech.
Answer with a JSON object of the form {"description": "...", "language": "..."}.`

// responseSchema is the JSON object the generation call returns.
type responseSchema struct {
	// Description is the free-text voice description that gets embedded
	Description string `json:"description"`

	// Language is the spoken language, if recognisable
	Language string `json:"language,omitempty"`
}
