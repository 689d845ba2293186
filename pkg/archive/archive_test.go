package archive

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type objectServer struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (s *objectServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusOK)
		return
	}
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.objects[r.URL.Path] = string(body)
	s.types[r.URL.Path] = r.Header.Get("Content-Type")
	s.mu.Unlock()
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func TestStoreTurn_UploadsClips(t *testing.T) {
	srv := &objectServer{objects: map[string]string{}, types: map[string]string{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c, err := New(Config{
		Endpoint:  strings.TrimPrefix(ts.URL, "http://"),
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "turns",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.StoreTurn(t.Context(), "sess", 3, []byte("RIFF"), []byte("ID3")); err != nil {
		t.Fatalf("StoreTurn() error = %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if got := srv.objects["/turns/sess/0003/input.wav"]; got != "RIFF" {
		t.Fatalf("input object = %q (objects=%v)", got, srv.objects)
	}
	if got := srv.objects["/turns/sess/0003/speech.mp3"]; got != "ID3" {
		t.Fatalf("speech object = %q", got)
	}
	if got := srv.types["/turns/sess/0003/speech.mp3"]; got != "audio/mpeg" {
		t.Fatalf("speech content type = %q", got)
	}
}

func TestStoreTurn_SkipsEmpty(t *testing.T) {
	srv := &objectServer{objects: map[string]string{}, types: map[string]string{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c, err := New(Config{Endpoint: strings.TrimPrefix(ts.URL, "http://"), Bucket: "turns"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.StoreTurn(t.Context(), "sess", 0, nil, nil); err != nil {
		t.Fatalf("StoreTurn() error = %v", err)
	}
	if len(srv.objects) != 0 {
		t.Fatalf("objects = %v, want none", srv.objects)
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestObjectName(t *testing.T) {
	if got := ObjectName("abc", 12, "input.wav"); got != "abc/0012/input.wav" {
		t.Fatalf("ObjectName = %q", got)
	}
}
