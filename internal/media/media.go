// Package media produces the attachments the assistant can send back:
// QR images, one-page PDF documents and GIF links.
package media

import (
	"fmt"
	"strings"

	"rsc.io/qr"
)

type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

type Attachment struct {
	Kind     Kind
	MimeType string
	FileName string
	Caption  string
	Data     []byte
}

// QRCode encodes payload as a PNG image attachment.
func QRCode(payload string) (Attachment, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Attachment{}, fmt.Errorf("qr payload is required")
	}
	code, err := qr.Encode(payload, qr.M)
	if err != nil {
		return Attachment{}, fmt.Errorf("encode qr: %w", err)
	}
	code.Scale = 8
	return Attachment{
		Kind:     KindImage,
		MimeType: "image/png",
		FileName: "qr.png",
		Caption:  "📱 Código QR: " + payload,
		Data:     code.PNG(),
	}, nil
}
