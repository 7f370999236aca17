package models

// Content is the model-facing body of a message. It is either TextContent
// or MultimodalContent; nothing else implements it.
type Content interface {
	isContent()
}

// TextContent is the body of a message without attachments.
type TextContent struct {
	Text string
}

// MultimodalContent is an ordered list of image and text parts.
type MultimodalContent struct {
	Parts []Part
}

func (TextContent) isContent()       {}
func (MultimodalContent) isContent() {}

// Part is one block of a MultimodalContent: ImagePart or TextPart.
type Part interface {
	isPart()
}

// ImagePart is an inline image block.
type ImagePart struct {
	MediaType MediaType
	Data      string // base64
}

// TextPart is a text block.
type TextPart struct {
	Text string
}

func (ImagePart) isPart() {}
func (TextPart) isPart()  {}

// BuildContent converts a chat message into model content. Messages without
// images become plain text. Otherwise every image comes first, followed by
// the text block when the text is non-empty. Truncated stored references
// carry no image data and are left out.
func BuildContent(m ChatMessage) Content {
	parts := make([]Part, 0, len(m.Images)+1)
	for _, img := range m.Images {
		if img.Truncated {
			continue
		}
		parts = append(parts, ImagePart{MediaType: img.MediaType, Data: img.Data})
	}
	if len(parts) == 0 {
		return TextContent{Text: m.Content}
	}
	if m.Content != "" {
		parts = append(parts, TextPart{Text: m.Content})
	}
	return MultimodalContent{Parts: parts}
}
