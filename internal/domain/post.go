package domain

import "strconv"

type MediaKind string

const (
	MediaPic       MediaKind = "pic"
	MediaGIF       MediaKind = "gif"
	MediaLivePhoto MediaKind = "livephoto"
)

// MediaRef is one attached picture with every resolution tier the upstream offered.
type MediaRef struct {
	ID       string
	Kind     MediaKind
	Variants map[string]string // tier name -> url
}

type VideoRef struct {
	StreamURL string
	Title     string
}

type PageMedia struct {
	URL string
}

// RawPost is one upstream item as captured. Never mutated after parsing.
type RawPost struct {
	ID          int64
	IDStr       string
	Text        string
	CreatedAt   string
	SourceLabel string
	Author      string

	Media     []MediaRef
	Video     *VideoRef
	Quoted    *RawPost
	PageMedia *PageMedia

	// RichContainer is set when the post carried a page_info block,
	// whether or not it could be understood.
	RichContainer bool
	Raw           []byte
}

// StableID is the identifier used in deep links.
func (p RawPost) StableID() string {
	if p.IDStr != "" {
		return p.IDStr
	}
	return strconv.FormatInt(p.ID, 10)
}
