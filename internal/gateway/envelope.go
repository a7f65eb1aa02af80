package gateway

// Stream event names used on the media WebSocket.
const (
	EventConnected = "connected"
	EventMedia     = "media"
	EventStop      = "stop"
)

// Envelope is one JSON event on the media stream, in either direction.
type Envelope struct {
	Event     string     `json:"event"`
	StreamSID string     `json:"streamSid,omitempty"`
	Start     *StartInfo `json:"start,omitempty"`
	Media     *MediaInfo `json:"media,omitempty"`
}

// StartInfo carries the call metadata attached to the connected event.
type StartInfo struct {
	CallSID string `json:"callSid"`
}

// MediaInfo carries one base64 chunk of telephony-encoded audio.
type MediaInfo struct {
	Payload string `json:"payload"`
}
