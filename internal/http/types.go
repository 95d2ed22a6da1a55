package http

// ErrorResponse is the failure envelope shared by every route. Phase names
// the pipeline step that failed and Raw carries the unparsed model output
// when extraction failed.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
	Phase   string `json:"phase,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

// FormatJSONRequest is the body of POST /api/v1/format-json.
type FormatJSONRequest struct {
	Text              string `json:"text"`
	SchemaInstruction string `json:"schema_instruction"`
}

// FormatJSONResponse wraps the extracted value.
type FormatJSONResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// TextToJSONRequest is the body of POST /api/v1/text-to-json.
type TextToJSONRequest struct {
	Text              string `json:"text"`
	FormatInstruction string `json:"format_instruction"`
	// Schema optionally describes the expected output shape.
	Schema string `json:"schema,omitempty"`
}

type AIScrapeResponse struct {
	Status  string `json:"status"`
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

type NicheArticle struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Source    string `json:"source,omitempty"`
	Published string `json:"published,omitempty"`
}

type NicheDataResponse struct {
	Query     string         `json:"query"`
	Summary   any            `json:"summary"`
	KeyTrends any            `json:"key_trends"`
	Articles  []NicheArticle `json:"articles"`
}

// WebhookRegisterRequest is the body of POST /api/v1/webhook/register.
type WebhookRegisterRequest struct {
	TargetURL   string `json:"target_url"`
	CallbackURL string `json:"callback_url"`
	EventType   string `json:"event_type"`
}

type WebhookRegisterResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	SubscriptionID string `json:"subscription_id"`
}

type WebhookSimulateResponse struct {
	Status                 string `json:"status"`
	Message                string `json:"message"`
	CallbackResponseStatus int    `json:"callback_response_status"`
	CallbackResponseText   string `json:"callback_response_text"`
}
