package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Danrejk/download-image-from-tiles/pkg/logger"
)

func TestClient_URL(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{
			"https://srv.example/viewer.php?i=img&file=_files/{zoom}/{x}_{y}.jpg",
			"https://srv.example/viewer.php?i=img&file=_files/13/7_21.jpg",
		},
		{
			"https://tiles.example/{zoom}/{x}/{y}.png",
			"https://tiles.example/13/7/21.png",
		},
	}

	for _, tt := range tests {
		c := NewClient(Config{URLTemplate: tt.template}, logger.NewNoOp())
		if got := c.URL(13, 7, 21); got != tt.want {
			t.Errorf("URL() = %q, want %q", got, tt.want)
		}
	}
}

func TestClient_Fetch(t *testing.T) {
	var gotUA, gotReferer, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		gotPath = r.URL.Path
		w.Write([]byte("tile bytes"))
	}))
	defer srv.Close()

	c := NewClient(Config{
		URLTemplate: srv.URL + "/{zoom}/{x}/{y}.jpg",
		Timeout:     time.Second,
		UserAgent:   "test-agent/1.0",
		Referer:     "https://viewer.example",
	}, logger.NewNoOp())

	data, err := c.Fetch(context.Background(), 2, 1, 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "tile bytes" {
		t.Errorf("Fetch() = %q, want %q", data, "tile bytes")
	}
	if gotPath != "/2/1/0.jpg" {
		t.Errorf("path = %q, want /2/1/0.jpg", gotPath)
	}
	if gotUA != "test-agent/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotReferer != "https://viewer.example" {
		t.Errorf("Referer = %q", gotReferer)
	}
}

func TestClient_Fetch_Status(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusNoContent} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		c := NewClient(Config{URLTemplate: srv.URL + "/{zoom}/{x}/{y}", Timeout: time.Second}, logger.NewNoOp())
		_, err := c.Fetch(context.Background(), 0, 0, 0)
		srv.Close()

		var se *StatusError
		isStatus := errors.As(err, &se)
		if code == http.StatusNoContent {
			if err != nil {
				t.Errorf("status %d: Fetch() error = %v, 2xx is success", code, err)
			}
			continue
		}
		if !isStatus || se.StatusCode != code {
			t.Errorf("status %d: Fetch() error = %v, want *StatusError", code, err)
		}
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewClient(Config{URLTemplate: srv.URL + "/{zoom}/{x}/{y}", Timeout: 50 * time.Millisecond}, logger.NewNoOp())
	_, err := c.Fetch(context.Background(), 0, 0, 0)
	if err == nil {
		t.Fatal("Fetch() should time out")
	}

	var se *StatusError
	if errors.As(err, &se) {
		t.Errorf("timeout reported as status error: %v", err)
	}
}
