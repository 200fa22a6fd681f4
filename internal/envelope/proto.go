package envelope

import "go.mau.fi/whatsmeow/proto/waE2E"

const maxUnwrapDepth = 4

// FromProto lists the payloads present in a whatsmeow message in priority
// order. Wrapper messages (ephemeral, view-once, document-with-caption) are
// unwrapped first. A nil message yields nil.
func FromProto(msg *waE2E.Message) []Payload {
	msg = unwrap(msg)
	if msg == nil {
		return nil
	}
	var payloads []Payload
	if text := msg.GetConversation(); text != "" {
		payloads = append(payloads, Conversation{Text: text})
	}
	if text := msg.GetExtendedTextMessage().GetText(); text != "" {
		payloads = append(payloads, ExtendedText{Text: text})
	}
	if caption := msg.GetImageMessage().GetCaption(); caption != "" {
		payloads = append(payloads, MediaCaption{Media: "image", Caption: caption})
	}
	if caption := msg.GetVideoMessage().GetCaption(); caption != "" {
		payloads = append(payloads, MediaCaption{Media: "video", Caption: caption})
	}
	if caption := msg.GetDocumentMessage().GetCaption(); caption != "" {
		payloads = append(payloads, MediaCaption{Media: "document", Caption: caption})
	}
	if reply := msg.GetButtonsResponseMessage(); reply != nil {
		payloads = append(payloads, ButtonsResponse{
			ID:          reply.GetSelectedButtonID(),
			DisplayText: reply.GetSelectedDisplayText(),
		})
	}
	if reply := msg.GetListResponseMessage(); reply != nil {
		payloads = append(payloads, ListResponse{
			RowID: reply.GetSingleSelectReply().GetSelectedRowID(),
			Title: reply.GetTitle(),
		})
	}
	if reply := msg.GetTemplateButtonReplyMessage(); reply != nil {
		payloads = append(payloads, TemplateButtonReply{
			ID:          reply.GetSelectedID(),
			DisplayText: reply.GetSelectedDisplayText(),
		})
	}
	if reply := msg.GetInteractiveResponseMessage(); reply != nil {
		payloads = append(payloads, NativeFlowResponse{
			ParamsJSON: reply.GetNativeFlowResponseMessage().GetParamsJSON(),
			Body:       reply.GetBody().GetText(),
		})
	}
	return payloads
}

// ExtractProto is FromProto followed by ExtractFirst. Interactive replies
// win over plain text when both are present.
func ExtractProto(msg *waE2E.Message) Content {
	payloads := FromProto(msg)
	for _, p := range payloads {
		content := Extract(p)
		if content.Choice != nil {
			return content
		}
	}
	return ExtractFirst(payloads...)
}

func unwrap(msg *waE2E.Message) *waE2E.Message {
	for depth := 0; msg != nil && depth < maxUnwrapDepth; depth++ {
		switch {
		case msg.GetEphemeralMessage().GetMessage() != nil:
			msg = msg.GetEphemeralMessage().GetMessage()
		case msg.GetViewOnceMessage().GetMessage() != nil:
			msg = msg.GetViewOnceMessage().GetMessage()
		case msg.GetViewOnceMessageV2().GetMessage() != nil:
			msg = msg.GetViewOnceMessageV2().GetMessage()
		case msg.GetDocumentWithCaptionMessage().GetMessage() != nil:
			msg = msg.GetDocumentWithCaptionMessage().GetMessage()
		default:
			return msg
		}
	}
	return msg
}
