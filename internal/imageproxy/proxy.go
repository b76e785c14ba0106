package imageproxy

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/orderdesk/internal/observability"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
	"github.com/spec-kit/orderdesk/pkg/util/fileutil"
)

// CachedPrefix marks a reference to a file already in the cache directory.
const CachedPrefix = "__cached__:"

const (
	defaultExtension = "webp"
	maxImageBytes    = 20 << 20
	userAgent        = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader     = "image/webp,image/apng,image/*,*/*;q=0.8"
)

var (
	cacheNamePattern = regexp.MustCompile(`^[a-f0-9]+\.\w+$`)

	contentTypes = map[string]string{
		"webp": "image/webp",
		"png":  "image/png",
		"jpg":  "image/jpeg",
		"jpeg": "image/jpeg",
		"gif":  "image/gif",
	}
)

// Image sources for metrics and logs.
const (
	SourceDisk   = "disk"
	SourceRemote = "remote"
)

// Image is a resolved image body.
type Image struct {
	Data        []byte
	ContentType string
	Source      string
}

// Target is a parsed source reference.
type Target struct {
	// URL is empty for cache-key references.
	URL       string
	CacheName string
}

// Config controls the proxy.
type Config struct {
	CacheDir string
	// Origin resolves origin-relative paths, e.g. https://shop.example.
	Origin  string
	Timeout time.Duration
	// MinBytes is the size an image must exceed to be cached or served from cache.
	MinBytes int
}

// Proxy resolves storefront image references to cached files, fetching
// misses from the origin. Concurrent misses for one file share a fetch.
type Proxy struct {
	cfg     Config
	client  *http.Client
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *zap.Logger
}

// New constructs a Proxy. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, metrics *observability.Metrics, logger *zap.Logger) *Proxy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 500
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{cfg: cfg, client: client, metrics: metrics, logger: logger}
}

// Resolve parses a source reference: a cache key, an absolute URL, or a path
// relative to the origin.
func (p *Proxy) Resolve(ref string) (Target, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Target{}, apperrors.NewInvalidInput("Missing ?u= parameter", nil)
	}
	if name, ok := strings.CutPrefix(ref, CachedPrefix); ok {
		if !cacheNamePattern.MatchString(name) {
			return Target{}, apperrors.NewInvalidInput("Invalid cache key", nil)
		}
		return Target{CacheName: name}, nil
	}

	url := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		if !strings.HasPrefix(ref, "/") {
			ref = "/" + ref
		}
		url = strings.TrimSuffix(p.cfg.Origin, "/") + ref
	}
	return Target{URL: url, CacheName: CacheName(url, ref)}, nil
}

// CacheName is the file name for url: 16 hex characters of its blake2b-256
// digest plus the extension guessed from ref.
func CacheName(url, ref string) string {
	sum := blake2b.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16] + "." + guessExtension(ref)
}

func guessExtension(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(ref), "."))
	if _, ok := contentTypes[ext]; ok {
		return ext
	}
	return defaultExtension
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return contentTypes[defaultExtension]
}

// Get returns the image behind ref.
func (p *Proxy) Get(ctx context.Context, ref string) (*Image, error) {
	target, err := p.Resolve(ref)
	if err != nil {
		return nil, err
	}
	cachePath := filepath.Join(p.cfg.CacheDir, target.CacheName)

	if target.URL == "" {
		data, err := os.ReadFile(cachePath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, apperrors.NewNotFound("cached image", map[string]any{"key": target.CacheName})
			}
			return nil, fmt.Errorf("read cached image: %w", err)
		}
		p.metrics.RecordImage(SourceDisk)
		return &Image{Data: data, ContentType: contentTypeFor(target.CacheName), Source: SourceDisk}, nil
	}

	if data, err := os.ReadFile(cachePath); err == nil && len(data) > p.cfg.MinBytes {
		p.metrics.RecordImage(SourceDisk)
		return &Image{Data: data, ContentType: contentTypeFor(target.CacheName), Source: SourceDisk}, nil
	}

	v, err, _ := p.group.Do(target.CacheName, func() (any, error) {
		return p.fetch(ctx, target.URL, cachePath)
	})
	if err != nil {
		p.logger.Warn("image fetch failed", zap.String("url", target.URL), zap.Error(err))
		return nil, apperrors.NewTransient("image fetch failed", err)
	}
	p.metrics.RecordImage(SourceRemote)
	return v.(*Image), nil
}

func (p *Proxy) fetch(ctx context.Context, url, cachePath string) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	if p.cfg.Origin != "" {
		req.Header.Set("Referer", strings.TrimSuffix(p.cfg.Origin, "/")+"/")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("origin returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}

	if len(data) > p.cfg.MinBytes {
		if err := fileutil.WriteAtomic(cachePath, data); err != nil {
			p.logger.Warn("could not cache image", zap.String("path", cachePath), zap.Error(err))
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFor(cachePath)
	}
	return &Image{Data: data, ContentType: contentType, Source: SourceRemote}, nil
}
