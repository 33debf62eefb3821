package photos

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func fastLoader() *Loader {
	return NewLoader().WithRetry(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})
}

func TestLoader_DownloadSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngMagic)
	}))
	defer ts.Close()

	img, err := fastLoader().Load(context.Background(), ts.URL+"/photo.png")
	require.NoError(t, err)
	assert.Equal(t, pngMagic, img.Data)
	assert.Equal(t, "image/png", img.MIMEType)
}

func TestLoader_SniffsMissingContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write(pngMagic)
	}))
	defer ts.Close()

	img, err := fastLoader().Load(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
}

func TestLoader_RejectsNonImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	_, err := fastLoader().Load(context.Background(), ts.URL)
	assert.ErrorIs(t, err, ErrNotAnImage)
}

func TestLoader_EnforcesMaxSize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(make([]byte, 2048))
	}))
	defer ts.Close()

	_, err := fastLoader().WithMaxSize(1024).Load(context.Background(), ts.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLoader_RetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer ts.Close()

	img, err := fastLoader().Load(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLoader_DoesNotRetryNotFound(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := fastLoader().Load(context.Background(), ts.URL)
	var statusErr *retry.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoader_DataURI(t *testing.T) {
	l := fastLoader()

	img, err := l.Load(context.Background(), "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngMagic))
	require.NoError(t, err)
	assert.Equal(t, pngMagic, img.Data)
	assert.Equal(t, "image/png", img.MIMEType)

	_, err = l.Load(context.Background(), "data:text/plain,hello%20world")
	assert.ErrorIs(t, err, ErrNotAnImage)

	_, err = l.Load(context.Background(), "data:image/png;base64")
	assert.ErrorIs(t, err, ErrUnsupportedReference)

	_, err = l.Load(context.Background(), "data:image/png;base64,***")
	assert.Error(t, err)
}

func TestLoader_UnsupportedReference(t *testing.T) {
	_, err := fastLoader().Load(context.Background(), "/tmp/photo.jpg")
	assert.ErrorIs(t, err, ErrUnsupportedReference)
}

func TestLoader_LoadAllKeepsOrderAndSkipsFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte(r.URL.Path))
	}))
	defer ts.Close()

	refs := []string{
		ts.URL + "/a",
		ts.URL + "/missing",
		"data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("GIF89a")),
		ts.URL + "/b",
		"ftp://example.com/c.jpg",
	}

	images := fastLoader().WithParallelism(2).LoadAll(context.Background(), refs)

	require.Len(t, images, 3)
	assert.Equal(t, []byte("/a"), images[0].Data)
	assert.Equal(t, "image/gif", images[1].MIMEType)
	assert.Equal(t, []byte("/b"), images[2].Data)
}
