/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/slot"
	"portraitdeck/internal/windows"
)

// message is the union of every frame and directive the server sends.
type message struct {
	Type     string       `json:"type"`
	WindowID string       `json:"windowId"`
	HTML     string       `json:"html"`
	Message  string       `json:"message"`
	URL      string       `json:"url"`
	Filename string       `json:"filename"`
	Kind     windows.Kind `json:"kind"`
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(Options{Slot: slot.NewMemory(0)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, view string) *websocket.Conn {
	t.Helper()
	return dialQuery(t, ts, url.Values{"view": {view}})
}

func dialQuery(t *testing.T, ts *httptest.Server, q url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + q.Encode()
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", q.Encode(), err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitFor reads messages until match accepts one.
func waitFor(t *testing.T, c *websocket.Conn, what string, match func(message) bool) message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = c.SetReadDeadline(deadline)
		var m message
		if err := c.ReadJSON(&m); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(m) {
			return m
		}
	}
}

func ofType(typ string) func(message) bool {
	return func(m message) bool { return m.Type == typ }
}

func renderContaining(s string) func(message) bool {
	return func(m message) bool { return m.Type == FrameRender && strings.Contains(m.HTML, s) }
}

func hello(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	m := waitFor(t, c, "hello", ofType(FrameHello))
	if m.WindowID == "" {
		t.Fatalf("hello without window id")
	}
	return m.WindowID
}

func send(t *testing.T, c *websocket.Conn, a Action) {
	t.Helper()
	if err := c.WriteJSON(a); err != nil {
		t.Fatalf("send %s: %v", a.Action, err)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 50))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field string, files map[string][]byte, mime string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+name+`"`)
		h.Set("Content-Type", mime)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestControlGetsHelloRenderAndPopups(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts, "control")
	hello(t, c)

	seen := map[string]bool{}
	waitFor(t, c, "empty deck render and both popups", func(m message) bool {
		switch {
		case m.Type == FrameRender:
			seen["render"] = true
		case m.Type == windows.DirectiveOpen:
			seen[string(m.Kind)] = true
		}
		return seen["render"] && seen["display"] && seen["remote"]
	})
}

func TestActionReachesDisplayThroughSlot(t *testing.T) {
	_, ts := newTestServer(t)
	display := dial(t, ts, "display")
	hello(t, display)
	waitFor(t, display, "waiting render", ofType(FrameRender))

	control := dial(t, ts, "control")
	hello(t, control)
	send(t, control, Action{Action: "loadSample"})

	waitFor(t, display, "sample on display", renderContaining("Headlines To Watch"))
}

func TestDisplayCannotMutate(t *testing.T) {
	srv, ts := newTestServer(t)
	display := dial(t, ts, "display")
	id := hello(t, display)
	waitFor(t, display, "first render", ofType(FrameRender))
	send(t, display, Action{Action: "loadSample"})

	body, ctype := multipartBody(t, "files", map[string][]byte{"a.png": pngBytes(t)}, "image/png")
	res, err := http.Post(ts.URL+"/api/windows/"+id+"/images", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("upload from display: status %d", res.StatusCode)
	}
	w, ok := srv.window(id)
	if !ok {
		t.Fatalf("display window not tracked")
	}
	if n := w.session.Deck().Len(); n != 0 {
		t.Fatalf("display changed the deck: %d slides", n)
	}
}

func TestUploadThenExport(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts, "control")
	id := hello(t, c)

	res, err := http.Get(ts.URL + "/api/windows/" + id + "/export")
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("empty export: status %d", res.StatusCode)
	}

	body, ctype := multipartBody(t, "files", map[string][]byte{"zebra-poster.png": pngBytes(t)}, "image/png")
	res, err = http.Post(ts.URL+"/api/windows/"+id+"/images", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	var up ImagesResponse
	if err := json.NewDecoder(res.Body).Decode(&up); err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK || len(up.Added) != 1 {
		t.Fatalf("upload: status %d, %+v", res.StatusCode, up)
	}
	waitFor(t, c, "poster in control list", renderContaining("zebra-poster"))

	res, err = http.Get(ts.URL + "/api/windows/" + id + "/export")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if cd := res.Header.Get("Content-Disposition"); !strings.Contains(cd, "obs-portrait-deck-") {
		t.Fatalf("content disposition %q", cd)
	}
	d, rep, err := domain.ParseImport(data)
	if err != nil || rep.Accepted != 1 || d.Slides[0].Meta().Label != "zebra-poster" {
		t.Fatalf("export round trip: %v %+v", err, rep)
	}

	res, err = http.Get(ts.URL + "/api/windows/" + id + "/export.pdf")
	if err != nil {
		t.Fatal(err)
	}
	pdf, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK || !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("pdf export: status %d", res.StatusCode)
	}
}

func TestUnreadableImageIsReported(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts, "control")
	id := hello(t, c)

	body, ctype := multipartBody(t, "files", map[string][]byte{"broken.png": {}}, "image/png")
	res, err := http.Post(ts.URL+"/api/windows/"+id+"/images", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	var up ImagesResponse
	_ = json.NewDecoder(res.Body).Decode(&up)
	_ = res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity || len(up.Failed) != 1 || up.Failed[0] != "broken.png" {
		t.Fatalf("status %d, %+v", res.StatusCode, up)
	}
	waitFor(t, c, "alert", ofType(FrameAlert))
}

func TestImportRejectsForeignJSON(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts, "control")
	id := hello(t, c)

	res, err := http.Post(ts.URL+"/api/windows/"+id+"/import", "application/json", strings.NewReader(`{"hello":"world"}`))
	if err != nil {
		t.Fatal(err)
	}
	msg, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(string(msg), domain.ImportFailedMessage) {
		t.Fatalf("status %d: %s", res.StatusCode, msg)
	}
}

func TestExportRequestSendsDownload(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts, "control")
	id := hello(t, c)
	send(t, c, Action{Action: "loadSample"})
	waitFor(t, c, "sample render", renderContaining("Headlines To Watch"))

	send(t, c, Action{Action: "exportDeck"})
	m := waitFor(t, c, "download", ofType(FrameDownload))
	if m.URL != "/api/windows/"+id+"/export" || !strings.HasSuffix(m.Filename, ".json") {
		t.Fatalf("download frame %+v", m)
	}
}

func TestUnknownWindowAndHealth(t *testing.T) {
	_, ts := newTestServer(t)
	res, err := http.Get(ts.URL + "/api/windows/nope/export")
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown window: status %d", res.StatusCode)
	}

	c := dial(t, ts, "remote")
	hello(t, c)
	// The remote registers right after its hello frame.
	var h HealthResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err = http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		h = HealthResponse{}
		if err := json.NewDecoder(res.Body).Decode(&h); err != nil {
			t.Fatal(err)
		}
		_ = res.Body.Close()
		if h.Remote || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if h.Status != "ok" || h.Windows != 1 || !h.Remote || h.Display {
		t.Fatalf("health %+v", h)
	}
}

func TestPageAndStatic(t *testing.T) {
	_, ts := newTestServer(t)
	res, err := http.Get(ts.URL + "/?view=remote")
	if err != nil {
		t.Fatal(err)
	}
	page, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if !strings.Contains(string(page), `data-view="remote"`) {
		t.Fatalf("page shell: %s", page)
	}
	res, err = http.Get(ts.URL + "/static/client.js")
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("static: status %d", res.StatusCode)
	}
}

func TestReservedIDsAreNeverShared(t *testing.T) {
	srv, _ := newTestServer(t)
	prev := uuid.NewString()
	a, err := srv.reserveID(prev)
	if err != nil || a != prev {
		t.Fatalf("first claim = %q, %v; want %q", a, err, prev)
	}
	b, err := srv.reserveID(prev)
	if err != nil || b == prev {
		t.Fatalf("second claim of a reserved id = %q, %v", b, err)
	}
	c, err := srv.reserveID("not-a-window-id")
	if _, perr := uuid.Parse(c); err != nil || perr != nil || c == a || c == b {
		t.Fatalf("malformed id claim = %q, %v", c, err)
	}
	srv.Close()
	if _, err := srv.reserveID(""); err == nil {
		t.Fatalf("closed server handed out an id")
	}
}

func TestReconnectingPagesWithOneIDAreKeptApart(t *testing.T) {
	srv, ts := newTestServer(t)
	prev := uuid.NewString()
	q := url.Values{"view": {"remote"}, "id": {prev}}
	first := hello(t, dialQuery(t, ts, q))
	second := hello(t, dialQuery(t, ts, q))
	if first != prev || second == prev {
		t.Fatalf("ids %q and %q for presented id %q", first, second, prev)
	}
	for _, id := range []string{first, second} {
		w, ok := srv.window(id)
		if !ok || w.session == nil {
			t.Fatalf("window %s is not fully registered", id)
		}
	}
}
