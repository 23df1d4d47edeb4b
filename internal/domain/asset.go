package domain

// Asset is a temporary file on disk inside the asset directory.
type Asset struct {
	Path      string
	Size      int64
	SourceURL string
	Format    string // jpeg, png, gif or webp
	Animated  bool
}
