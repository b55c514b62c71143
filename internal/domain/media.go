package domain

// MediaKind enumerates the attachment types the relay can carry.
type MediaKind string

const (
	MediaNone     MediaKind = "none"
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaVoice    MediaKind = "voice"
)

// Media is a single attachment reference. Ref is the platform file id.
type Media struct {
	Kind MediaKind `json:"kind,omitempty"`
	Ref  string    `json:"ref,omitempty"`
}

// IsNone reports whether no attachment is present.
func (m Media) IsNone() bool {
	return m.Kind == "" || m.Kind == MediaNone || m.Ref == ""
}

// KindOrNone normalizes the empty kind.
func (m Media) KindOrNone() MediaKind {
	if m.IsNone() {
		return MediaNone
	}
	return m.Kind
}
