package filestorage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cozy-creator/image-ingest/internal/config"
)

func TestVariantKey(t *testing.T) {
	got := VariantKey("abcdef", "thumb")
	if got != "images/ab/abcdef/thumb.jpg" {
		t.Fatalf("unexpected key %q", got)
	}

	if got := SiteKey("abcdef", ".png"); got != "site/abcdef.png" {
		t.Fatalf("unexpected site key %q", got)
	}
}

func TestLocalFileStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	storage, err := NewLocalFileStorage(&config.Config{
		FilesystemType: config.FilesystemLocal,
		AssetsDir:      dir,
		PublicURL:      "http://localhost:8881/",
	})
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}

	key := VariantKey("abcdef", "small")
	url, err := storage.Upload(ctx, NewFileInfo(key, []byte("first"), "image/jpeg"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "http://localhost:8881/files/images/ab/abcdef/small.jpg" {
		t.Fatalf("unexpected url %q", url)
	}

	// Same key overwrites.
	if _, err := storage.Upload(ctx, NewFileInfo(key, []byte("second"), "image/jpeg")); err != nil {
		t.Fatalf("re-upload: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "images", "ab", "abcdef", "small.jpg"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "second" {
		t.Fatalf("expected overwritten content, got %q", content)
	}

	file, err := storage.GetFile(ctx, key)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if string(file.Content) != "second" {
		t.Fatalf("unexpected content %q", file.Content)
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if _, err := storage.GetFile(ctx, key); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}

	if _, err := storage.Upload(ctx, NewFileInfo("../escape.jpg", []byte("x"), "")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3FileStorage(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	server := httptest.NewServer(fake)
	defer server.Close()

	storage, err := NewS3FileStorage(ctx, &config.Config{
		FilesystemType: config.FilesystemS3,
		S3: &config.S3Config{
			Bucket:      "catalog",
			Folder:      "public/",
			Region:      "us-east-1",
			AccessKey:   "key",
			SecretKey:   "secret",
			EndpointUrl: server.URL,
			VanityUrl:   "https://images.example.com/",
			PathStyle:   true,
		},
	})
	if err != nil {
		t.Fatalf("new s3 storage: %v", err)
	}

	key := VariantKey("abcdef", "large")
	url, err := storage.Upload(ctx, NewFileInfo(key, []byte("variant"), "image/jpeg"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://images.example.com/public/images/ab/abcdef/large.jpg" {
		t.Fatalf("unexpected url %q", url)
	}

	objectPath := "/catalog/public/images/ab/abcdef/large.jpg"
	if string(fake.objects[objectPath]) != "variant" {
		t.Fatalf("object not stored at %s: %v", objectPath, fake.objects)
	}
	if fake.types[objectPath] != "image/jpeg" {
		t.Fatalf("unexpected content type %q", fake.types[objectPath])
	}

	file, err := storage.GetFile(ctx, key)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if string(file.Content) != "variant" || file.ContentType != "image/jpeg" {
		t.Fatalf("unexpected file %+v", file)
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := fake.objects[objectPath]; ok {
		t.Fatal("object still present after delete")
	}
}

func TestPublicObjectURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.S3Config
		want string
	}{
		{
			name: "spaces",
			cfg:  config.S3Config{Bucket: "b", Region: "nyc3", EndpointUrl: "https://nyc3.digitaloceanspaces.com"},
			want: "https://b.nyc3.cdn.digitaloceanspaces.com/k.jpg",
		},
		{
			name: "aws",
			cfg:  config.S3Config{Bucket: "b", EndpointUrl: "https://s3.us-east-1.amazonaws.com/"},
			want: "https://b.s3.us-east-1.amazonaws.com/k.jpg",
		},
		{
			name: "generic",
			cfg:  config.S3Config{Bucket: "b", EndpointUrl: "http://minio:9000/"},
			want: "http://minio:9000/b/k.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := publicObjectURL(&tt.cfg, "k.jpg"); !strings.EqualFold(got, tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
