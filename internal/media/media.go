package media

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/panjf2000/ants/v2"
)

type Status int

const (
	StatusOK Status = iota
	StatusTooLarge
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTooLarge:
		return "too_large"
	default:
		return "failed"
	}
}

// Result is the outcome of preparing one post's images for attachment.
type Result struct {
	Status          Status
	Asset           *domain.Asset
	Animated        []*domain.Asset
	Sources         int
	Downloaded      int
	AnimatedSources int
}

type Options struct {
	Dir              string
	MaxDownloadBytes int64
	AllowedDomains   []string
	KeepFiles        bool
	Workers          int
	Timeout          time.Duration
	UserAgent        string
}

type Pipeline struct {
	root   string
	opts   Options
	client *http.Client
	pool   *ants.Pool
	logger logger.Logger
}

// New creates the asset directory and a bounded download pool.
func New(opts Options, client *http.Client, log logger.Logger) (*Pipeline, error) {
	root, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "resolve asset dir")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "create asset dir")
	}

	if opts.Workers < 1 {
		opts.Workers = 1
	}
	pool, err := ants.NewPool(opts.Workers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "create download pool")
	}

	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Pipeline{
		root:   root,
		opts:   opts,
		client: client,
		pool:   pool,
		logger: log.WithComponent("MediaPipeline"),
	}, nil
}

func (p *Pipeline) Root() string {
	return p.root
}

// Close releases the download pool.
func (p *Pipeline) Close() {
	p.pool.Release()
}

// Purge removes every file left in the asset directory.
func (p *Pipeline) Purge() (int, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(p.root, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// confine resolves name inside the asset directory and rejects anything that escapes it.
func (p *Pipeline) confine(name string) (string, error) {
	path := filepath.Join(p.root, name)
	rel, err := filepath.Rel(p.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Newf(errors.CodeValidation, "path %q escapes asset dir", name)
	}
	return path, nil
}

func (p *Pipeline) inside(path string) bool {
	rel, err := filepath.Rel(p.root, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Scope tracks every asset created while handling one item.
type Scope struct {
	p      *Pipeline
	mu     sync.Mutex
	assets []*domain.Asset
}

func (p *Pipeline) NewScope() *Scope {
	return &Scope{p: p}
}

func (s *Scope) track(a *domain.Asset) {
	s.mu.Lock()
	s.assets = append(s.assets, a)
	s.mu.Unlock()
}

// Len reports how many assets are currently tracked.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assets)
}

// Release deletes every tracked file unless the pipeline keeps files.
func (s *Scope) Release() {
	s.mu.Lock()
	assets := s.assets
	s.assets = nil
	s.mu.Unlock()

	if s.p.opts.KeepFiles {
		return
	}
	for _, a := range assets {
		if !s.p.inside(a.Path) {
			s.p.logger.Warn("Skipping removal outside asset dir", "path", a.Path)
			continue
		}
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			s.p.logger.Warn("Failed to remove asset", "path", a.Path, "error", err)
		}
	}
}

// writeAsset stores data under a fresh name and tracks it in scope.
func (p *Pipeline) writeAsset(scope *Scope, data []byte, format, source string, animated bool) (*domain.Asset, error) {
	path, err := p.confine(newName(format))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, fmt.Sprintf("write %s", path))
	}

	a := &domain.Asset{
		Path:      path,
		Size:      int64(len(data)),
		SourceURL: source,
		Format:    format,
		Animated:  animated,
	}
	scope.track(a)
	return a, nil
}
