// Package envelope maps inbound WhatsApp payload shapes onto one canonical
// text plus optional picked-option representation.
package envelope

import (
	"encoding/json"
	"strings"
)

// Payload is the closed set of inbound shapes the router understands.
type Payload interface {
	payload()
}

type Conversation struct {
	Text string
}

type ExtendedText struct {
	Text string
}

// MediaCaption covers image, video and document captions.
type MediaCaption struct {
	Media   string
	Caption string
}

type ButtonsResponse struct {
	ID          string
	DisplayText string
}

type ListResponse struct {
	RowID string
	Title string
}

type TemplateButtonReply struct {
	ID          string
	DisplayText string
}

// NativeFlowResponse is the interactive-message reply; ParamsJSON usually
// carries {"id": "..."}.
type NativeFlowResponse struct {
	ParamsJSON string
	Body       string
}

func (Conversation) payload()        {}
func (ExtendedText) payload()        {}
func (MediaCaption) payload()        {}
func (ButtonsResponse) payload()     {}
func (ListResponse) payload()        {}
func (TemplateButtonReply) payload() {}
func (NativeFlowResponse) payload()  {}

// Choice is a "user picked option N" signal.
type Choice struct {
	ID   string
	Text string
}

type Content struct {
	Text   string
	Choice *Choice
}

// Extract normalizes any payload. Unknown or nil payloads yield an empty
// Content.
func Extract(p Payload) Content {
	switch value := p.(type) {
	case Conversation:
		return Content{Text: strings.TrimSpace(value.Text)}
	case ExtendedText:
		return Content{Text: strings.TrimSpace(value.Text)}
	case MediaCaption:
		return Content{Text: strings.TrimSpace(value.Caption)}
	case ButtonsResponse:
		return choiceContent(value.ID, value.DisplayText)
	case ListResponse:
		return choiceContent(value.RowID, value.Title)
	case TemplateButtonReply:
		return choiceContent(value.ID, value.DisplayText)
	case NativeFlowResponse:
		return choiceContent(nativeFlowID(value.ParamsJSON), value.Body)
	default:
		return Content{}
	}
}

// ExtractFirst returns the content of the first payload yielding text or a choice.
func ExtractFirst(payloads ...Payload) Content {
	for _, p := range payloads {
		content := Extract(p)
		if content.Text != "" || content.Choice != nil {
			return content
		}
	}
	return Content{}
}

func choiceContent(id, text string) Content {
	id = strings.TrimSpace(id)
	text = strings.TrimSpace(text)
	if id == "" && text == "" {
		return Content{}
	}
	if id == "" {
		return Content{Text: text}
	}
	return Content{Text: text, Choice: &Choice{ID: id, Text: text}}
}

func nativeFlowID(params string) string {
	params = strings.TrimSpace(params)
	if params == "" {
		return ""
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(params), &decoded); err != nil {
		return ""
	}
	for _, key := range []string{"id", "selected_id", "button_id"} {
		if value, ok := decoded[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
