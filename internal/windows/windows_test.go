/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package windows

import (
	"errors"
	"strings"
	"testing"
)

type fakeSatellite struct {
	got []Directive
	err error
}

func (f *fakeSatellite) Send(d Directive) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, d)
	return nil
}

func TestURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080/":                      "http://localhost:8080/?view=display",
		"http://localhost:8080/?view=control#editor":  "http://localhost:8080/?view=display",
		"http://localhost:8080/deck/index.html?x=1&y": "http://localhost:8080/deck/index.html?view=display",
	}
	for in, want := range cases {
		if got := URL(in, Display); got != want {
			t.Fatalf("URL(%q)=%q want %q", in, got, want)
		}
	}
	if got := URL("http://h/", Remote); got != "http://h/?view=remote" {
		t.Fatalf("remote URL=%q", got)
	}
}

func TestFeatures(t *testing.T) {
	got := Features(Display, Origin{})
	want := "popup=1,width=540,height=960,resizable=yes,scrollbars=no,toolbar=0,location=0,status=0,menubar=0,left=120,top=80"
	if got != want {
		t.Fatalf("display features\n got %s\nwant %s", got, want)
	}
	got = Features(Remote, Origin{X: 100, Y: -500, Known: true})
	if !strings.HasSuffix(got, "width=720,height=320,left=180,top=0") {
		t.Fatalf("remote features %s", got)
	}
}

func TestEnsureOpensThenRefocuses(t *testing.T) {
	r := NewRegistry()
	d, open := r.Ensure(Display, "http://h/", Origin{}, false)
	if !open || d.Type != DirectiveOpen || d.Name != DisplayName || d.URL != "http://h/?view=display" {
		t.Fatalf("unexpected open directive %+v open=%v", d, open)
	}

	sat := &fakeSatellite{}
	r.Register(Display, sat)
	d, open = r.Ensure(Display, "http://h/", Origin{}, true)
	if open || d.Type != DirectiveRefocus {
		t.Fatalf("expected refocus, got %+v open=%v", d, open)
	}
	if len(sat.got) != 1 || !sat.got[0].Focus || sat.got[0].Width != 540 {
		t.Fatalf("satellite got %+v", sat.got)
	}

	r.Unregister(Display, sat)
	if r.Live(Display) {
		t.Fatalf("closed window still live")
	}
	if _, open := r.Ensure(Display, "http://h/", Origin{}, false); !open {
		t.Fatalf("closed window must be reopened")
	}
}

func TestEnsureDropsBrokenSatellite(t *testing.T) {
	r := NewRegistry()
	r.Register(Remote, &fakeSatellite{err: errors.New("gone")})
	d, open := r.Ensure(Remote, "http://h/", Origin{}, false)
	if !open || d.Name != RemoteName {
		t.Fatalf("expected reopen after failed refocus, got %+v", d)
	}
	if r.Live(Remote) {
		t.Fatalf("broken satellite still registered")
	}
}

func TestUnregisterIgnoresStaleHandle(t *testing.T) {
	r := NewRegistry()
	first, second := &fakeSatellite{}, &fakeSatellite{}
	r.Register(Display, first)
	r.Register(Display, second)
	r.Unregister(Display, first)
	if !r.Live(Display) {
		t.Fatalf("replacement window was dropped by stale close")
	}
}

func TestAutoOpenOncePerControlWindow(t *testing.T) {
	r := NewRegistry()
	if !r.AutoOpen("c1", Display) || r.AutoOpen("c1", Display) {
		t.Fatalf("auto-open must fire exactly once")
	}
	if !r.AutoOpen("c1", Remote) || !r.AutoOpen("c2", Display) {
		t.Fatalf("auto-open is per control window and kind")
	}
	r.Forget("c1")
	if !r.AutoOpen("c1", Display) {
		t.Fatalf("forgotten control window starts fresh")
	}
}
