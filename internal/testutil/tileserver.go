// Package testutil provides a scriptable tile server for tests.
package testutil

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// Response is one scripted answer for a tile position.
type Response struct {
	StatusCode int
	Body       []byte
}

type cell struct {
	x, y int
}

// TileServer serves /{zoom}/{x}/{y}.png. By default every tile is a solid
// PNG of TileColor(x, y); SetResponses overrides the next answers per tile.
type TileServer struct {
	server   *httptest.Server
	tileSize int

	mu          sync.Mutex
	scripted    map[cell][]Response
	sticky      map[cell]Response
	requests    map[cell]int
	total       int
	inFlight    int
	maxInFlight int
	delay       time.Duration
}

func NewTileServer(tileSize int) *TileServer {
	s := &TileServer{
		tileSize: tileSize,
		scripted: make(map[cell][]Response),
		sticky:   make(map[cell]Response),
		requests: make(map[cell]int),
	}

	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *TileServer) handle(w http.ResponseWriter, r *http.Request) {
	var z, x, y int
	if _, err := fmt.Sscanf(r.URL.Path, "/%d/%d/%d.png", &z, &x, &y); err != nil {
		http.Error(w, "bad tile path", http.StatusBadRequest)
		return
	}
	c := cell{x, y}

	s.mu.Lock()
	s.requests[c]++
	s.total++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	delay := s.delay
	resp, scripted := s.next(c)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if !scripted {
		w.Header().Set("Content-Type", "image/png")
		w.Write(EncodeTile(s.tileSize, TileColor(x, y)))
		return
	}

	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// next must be called with s.mu held.
func (s *TileServer) next(c cell) (Response, bool) {
	if queue := s.scripted[c]; len(queue) > 0 {
		s.scripted[c] = queue[1:]
		return queue[0], true
	}
	if resp, ok := s.sticky[c]; ok {
		return resp, true
	}
	return Response{}, false
}

// URLTemplate returns a template with {zoom}, {x} and {y} placeholders.
func (s *TileServer) URLTemplate() string {
	return s.server.URL + "/{zoom}/{x}/{y}.png"
}

func (s *TileServer) Close() {
	s.server.Close()
}

// SetResponses queues answers for the next requests of tile (x, y). Once the
// queue is drained the default tile is served again.
func (s *TileServer) SetResponses(x, y int, responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted[cell{x, y}] = append(s.scripted[cell{x, y}], responses...)
}

// SetAlways makes tile (x, y) answer resp on every request.
func (s *TileServer) SetAlways(x, y int, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sticky[cell{x, y}] = resp
}

func (s *TileServer) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *TileServer) Requests(x, y int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[cell{x, y}]
}

func (s *TileServer) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *TileServer) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// ResetCounters clears request tracking but keeps scripted responses.
func (s *TileServer) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = make(map[cell]int)
	s.total = 0
	s.maxInFlight = 0
}

// TileColor is a distinct opaque colour per tile position.
func TileColor(x, y int) color.NRGBA {
	return color.NRGBA{R: uint8(40 * x), G: uint8(40 * y), B: 200, A: 255}
}

// EncodeTile returns a size x size PNG filled with c.
func EncodeTile(size int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, imaging.New(size, size, c)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
