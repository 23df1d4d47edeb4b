package domain

import "time"

type Variant int

const (
	VariantTextOnly Variant = iota
	VariantSingleImage
	VariantMultiImage
	VariantVideo
	VariantRepost
)

func (v Variant) String() string {
	switch v {
	case VariantSingleImage:
		return "single_image"
	case VariantMultiImage:
		return "multi_image"
	case VariantVideo:
		return "video"
	case VariantRepost:
		return "repost"
	default:
		return "text_only"
	}
}

type Envelope struct {
	Title     string
	Body      string
	Footer    string
	URL       string
	AvatarURL string
	Timestamp time.Time
	Color     int
}

type Quote struct {
	Author    string
	Text      string
	ImageURLs []string
}

// RenderPlan is the classified form of a post, ready for delivery.
type RenderPlan struct {
	PostID    int64
	Variant   Variant
	Envelope  Envelope
	ImageURLs []string
	Quote     *Quote
}

// Degraded returns the text-only fallback of the plan.
func (p RenderPlan) Degraded() RenderPlan {
	return RenderPlan{
		PostID:   p.PostID,
		Variant:  VariantTextOnly,
		Envelope: p.Envelope,
	}
}
