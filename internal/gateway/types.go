// Package gateway talks to the Evolution API WhatsApp gateway: the
// outbound message client and the webhook payload wire format.
package gateway

// WebhookEnvelope is the outer payload Evolution API delivers to the
// webhook endpoint. Data is left raw because its shape depends on the
// event name.
type WebhookEnvelope struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     MessageData `json:"data"`
}

// MessageData is the payload of messages.upsert events.
type MessageData struct {
	Key              MessageKey     `json:"key"`
	PushName         string         `json:"pushName"`
	Message          MessageContent `json:"message"`
	MessageType      string         `json:"messageType"`
	MessageTimestamp int64          `json:"messageTimestamp"`
}

// MessageKey identifies a message and its conversation.
type MessageKey struct {
	ID          string `json:"id"`
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	Participant string `json:"participant"`
}

// MessageContent carries the per-kind message bodies. Exactly one of
// the nested fields is populated for a given message.
type MessageContent struct {
	Conversation        string           `json:"conversation"`
	ExtendedTextMessage *ExtendedText    `json:"extendedTextMessage"`
	ImageMessage        *MediaAttachment `json:"imageMessage"`
	VideoMessage        *MediaAttachment `json:"videoMessage"`
	AudioMessage        *MediaAttachment `json:"audioMessage"`
	DocumentMessage     *DocumentInfo    `json:"documentMessage"`
	StickerMessage      *MediaAttachment `json:"stickerMessage"`
	LocationMessage     *LocationInfo    `json:"locationMessage"`
	ContactMessage      *ContactInfo     `json:"contactMessage"`
}

// ExtendedText is a text message with optional quoting context.
type ExtendedText struct {
	Text        string       `json:"text"`
	ContextInfo *ContextInfo `json:"contextInfo"`
}

// ContextInfo links a message to the one it quotes.
type ContextInfo struct {
	StanzaID    string `json:"stanzaId"`
	Participant string `json:"participant"`
}

// MediaAttachment is the common shape of image, video, audio, and
// sticker bodies.
type MediaAttachment struct {
	Caption  string `json:"caption"`
	Mimetype string `json:"mimetype"`
	URL      string `json:"url"`
}

// LocationInfo is a shared location body.
type LocationInfo struct {
	DegreesLatitude  float64 `json:"degreesLatitude"`
	DegreesLongitude float64 `json:"degreesLongitude"`
}

// ContactInfo is a shared contact card body.
type ContactInfo struct {
	DisplayName string `json:"displayName"`
}

// DocumentInfo is a document attachment body.
type DocumentInfo struct {
	FileName string `json:"fileName"`
	Caption  string `json:"caption"`
	Mimetype string `json:"mimetype"`
}

// sendTextRequest is the body of POST /message/sendText/{instance}.
type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// sendMediaRequest is the body of POST /message/sendMedia/{instance}.
type sendMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
}
