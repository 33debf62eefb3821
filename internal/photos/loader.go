// Package photos turns the photo references of a research request into
// image bytes for the model.
package photos

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/llm"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/retry"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDownloadTimeout is the default timeout for image downloads
	DefaultDownloadTimeout = 30 * time.Second
	// DefaultMaxImageSize is the default maximum image size (10MB)
	DefaultMaxImageSize = 10 * 1024 * 1024
	// DefaultParallelism caps concurrent downloads per request.
	DefaultParallelism = 4
)

var (
	ErrUnsupportedReference = errors.New("unsupported photo reference")
	ErrNotAnImage           = errors.New("not an image")
	ErrTooLarge             = errors.New("image too large")
)

// Loader resolves photo references: http(s) URLs are downloaded, data: URIs
// are decoded in place.
type Loader struct {
	client      *resty.Client
	timeout     time.Duration
	maxSize     int64
	parallelism int
	retry       retry.Policy
}

// NewLoader creates a Loader with default settings.
func NewLoader() *Loader {
	return &Loader{
		client:      resty.New().SetTimeout(DefaultDownloadTimeout),
		timeout:     DefaultDownloadTimeout,
		maxSize:     DefaultMaxImageSize,
		parallelism: DefaultParallelism,
		retry:       retry.DefaultPolicy,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (l *Loader) WithTimeout(timeout time.Duration) *Loader {
	l.timeout = timeout
	l.client.SetTimeout(timeout)
	return l
}

// WithMaxSize sets a custom maximum file size.
func (l *Loader) WithMaxSize(maxSize int64) *Loader {
	l.maxSize = maxSize
	return l
}

// WithRetry sets the retry policy for downloads.
func (l *Loader) WithRetry(p retry.Policy) *Loader {
	l.retry = p
	return l
}

// WithParallelism sets how many photos load at once.
func (l *Loader) WithParallelism(n int) *Loader {
	if n > 0 {
		l.parallelism = n
	}
	return l
}

// LoadAll loads every reference concurrently and returns the images that
// loaded, in input order. Failed references are logged and skipped.
func (l *Loader) LoadAll(ctx context.Context, refs []string) []llm.Image {
	loaded := make([]*llm.Image, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for i, ref := range refs {
		g.Go(func() error {
			img, err := l.Load(gctx, ref)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Int("photo", i).Str("ref", truncateRef(ref)).Msg("skipping photo")
				return nil
			}
			loaded[i] = &img
			return nil
		})
	}
	g.Wait()

	images := make([]llm.Image, 0, len(refs))
	for _, img := range loaded {
		if img != nil {
			images = append(images, *img)
		}
	}
	log.Ctx(ctx).Debug().Int("requested", len(refs)).Int("loaded", len(images)).Msg("photos loaded")
	return images
}

// Load resolves a single reference.
func (l *Loader) Load(ctx context.Context, ref string) (llm.Image, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "data:"):
		return l.decodeDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return retry.Do(ctx, l.retry, "photo download", func(ctx context.Context) (llm.Image, error) {
			return l.download(ctx, ref)
		})
	default:
		return llm.Image{}, fmt.Errorf("%w: %s", ErrUnsupportedReference, truncateRef(ref))
	}
}

// download fetches imageURL. It respects context cancellation and enforces
// size limits.
func (l *Loader) download(ctx context.Context, imageURL string) (llm.Image, error) {
	reqCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.client.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return llm.Image{}, fmt.Errorf("failed to download image: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() != http.StatusOK {
		return llm.Image{}, &retry.StatusError{Code: res.StatusCode(), URL: imageURL}
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return llm.Image{}, fmt.Errorf("%w: expected image/*, got %s", ErrNotAnImage, contentType)
	}

	if res.RawResponse.ContentLength > l.maxSize {
		return llm.Image{}, fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrTooLarge, res.RawResponse.ContentLength, l.maxSize)
	}

	// LimitReader enforces the limit even if Content-Length is missing or wrong
	data, err := io.ReadAll(io.LimitReader(body, l.maxSize+1))
	if err != nil {
		return llm.Image{}, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > l.maxSize {
		return llm.Image{}, fmt.Errorf("%w: exceeds limit of %d bytes", ErrTooLarge, l.maxSize)
	}

	return newImage(data, contentType)
}

func (l *Loader) decodeDataURI(ref string) (llm.Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return llm.Image{}, fmt.Errorf("%w: data URI without payload", ErrUnsupportedReference)
	}

	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta, isBase64 = m, true
	}

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return llm.Image{}, fmt.Errorf("failed to decode data URI: %w", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return llm.Image{}, fmt.Errorf("failed to decode data URI: %w", err)
		}
		data = []byte(unescaped)
	}

	if int64(len(data)) > l.maxSize {
		return llm.Image{}, fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrTooLarge, len(data), l.maxSize)
	}
	return newImage(data, meta)
}

// newImage settles the MIME type, sniffing the bytes when none was declared.
func newImage(data []byte, contentType string) (llm.Image, error) {
	if len(data) == 0 {
		return llm.Image{}, fmt.Errorf("%w: empty body", ErrNotAnImage)
	}

	mimeType := ""
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			mimeType = mt
		}
	}
	if mimeType == "" {
		mimeType, _, _ = strings.Cut(http.DetectContentType(data), ";")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return llm.Image{}, fmt.Errorf("%w: %s", ErrNotAnImage, mimeType)
	}
	return llm.Image{Data: data, MIMEType: mimeType}, nil
}

func truncateRef(ref string) string {
	if len(ref) > 80 {
		return ref[:80] + "..."
	}
	return ref
}
