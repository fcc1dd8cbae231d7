package gemini

// Wire types for the generativelanguage.googleapis.com REST API. Only the
// plain-text subset this service uses is modeled.

type GenerateRequest struct {
	Contents          []Content          `json:"contents"`
	SystemInstruction *SystemInstruction `json:"systemInstruction,omitempty"`
}

type SystemInstruction struct {
	Parts []Part `json:"parts"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text,omitempty"`
}

type GenerateResponse struct {
	Candidates    []Candidate   `json:"candidates"`
	UsageMetadata UsageMetadata `json:"usageMetadata"`
	ModelVersion  string        `json:"modelVersion"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// text concatenates the text parts of the first candidate.
func (r *GenerateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	out := ""
	for _, part := range r.Candidates[0].Content.Parts {
		out += part.Text
	}
	return out
}
