/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render turns a window's state into the HTML fragment its page
// swaps in, one template per role.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"regexp"
	"strings"
	"unicode/utf8"

	"portraitdeck/internal/deck"
	"portraitdeck/internal/domain"
	"portraitdeck/internal/imaging"
	"portraitdeck/internal/windows"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static returns the page assets (script and stylesheet).
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Texts shown by the views.
const (
	WaitingMessage     = "Waiting for slides… keep the control window open and advance from there."
	RemoteEmptyMessage = "No slides yet. Keep the main control room open to add slides."
	EmptyDeckMessage   = "No slides yet. Add a text slide or drop in PNG/JPG posters."
	NoSlideLoaded      = "No slide loaded."
	remoteLabelMax     = 28
	remoteLabelKeep    = 25
)

// RemoteLabel shortens a label for the remote cards: over 28 characters it
// keeps the first 25 and appends an ellipsis.
func RemoteLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Slide"
	}
	if utf8.RuneCountInString(s) <= remoteLabelMax {
		return s
	}
	r := []rune(s)
	return string(r[:remoteLabelKeep]) + "…"
}

// Multiline escapes s and turns newlines into line breaks.
func Multiline(s string) template.HTML {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return template.HTML(strings.ReplaceAll(template.HTMLEscapeString(s), "\n", "<br />"))
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// cssColor passes hex colours through and replaces anything else with def.
func cssColor(c, def string) string {
	if hexColor.MatchString(strings.TrimSpace(c)) {
		return strings.TrimSpace(c)
	}
	return def
}

// imageURL admits only raster data URLs into an img src.
func imageURL(s string) template.URL {
	if imaging.Viewable(s) {
		return template.URL(s)
	}
	return ""
}

// Stage is one slide as drawn on a stage surface.
type Stage struct {
	Variant string
	Classes string
	Kind    domain.Kind
	// text slides
	Title, Eyebrow, Footnote string
	Body                     template.HTML
	Align                    domain.Align
	Style                    template.CSS
	// image slides
	Src template.URL
	Alt string
	Fit domain.Fit
}

func newStage(s domain.Slide, variant string) *Stage {
	if s == nil {
		return nil
	}
	classes := []string{"stage-shell"}
	switch variant {
	case "preview", "list", "remote":
		classes = append(classes, variant)
	case "display":
		classes = append(classes, "display-shell", "display")
	}
	st := &Stage{Variant: variant, Classes: strings.Join(classes, " "), Kind: s.Kind()}
	switch v := s.(type) {
	case *domain.TextSlide:
		st.Title, st.Eyebrow, st.Footnote = v.Title, v.Eyebrow, v.Footnote
		if v.Body != "" {
			st.Body = Multiline(v.Body)
		}
		st.Align = domain.AlignCenter
		if v.Align == domain.AlignLeft {
			st.Align = domain.AlignLeft
		}
		st.Style = template.CSS(fmt.Sprintf("background:%s;color:%s",
			cssColor(v.Background, domain.DefaultBackground), cssColor(v.TextColor, domain.DefaultTextColor)))
	case *domain.ImageSlide:
		st.Src = imageURL(v.ImageData)
		st.Alt = v.Label
		if st.Alt == "" {
			st.Alt = "Slide"
		}
		st.Fit = domain.FitCover
		if v.ImageFit == domain.FitContain {
			st.Fit = domain.FitContain
		}
	}
	return st
}

// Row is one entry of the control deck list.
type Row struct {
	ID       string
	Number   int
	Label    string
	KindName string
	Active   bool
	Selected bool
	Stage    *Stage
}

// Editor describes the inline editor for the selected slide.
type Editor struct {
	ID         string
	Kind       domain.Kind
	Label      string
	Title      string
	Eyebrow    string
	Footnote   string
	Body       string
	Align      domain.Align
	Background string
	TextColor  string
	Fit        domain.Fit
	Replacing  bool
}

func newEditor(s domain.Slide, replaceTarget string) *Editor {
	if s == nil {
		return nil
	}
	e := &Editor{ID: s.Meta().ID, Kind: s.Kind(), Label: s.Meta().Label, Replacing: replaceTarget == s.Meta().ID}
	switch v := s.(type) {
	case *domain.TextSlide:
		e.Title, e.Eyebrow, e.Footnote, e.Body = v.Title, v.Eyebrow, v.Footnote, v.Body
		e.Align = v.Align
		e.Background = cssColor(v.Background, domain.DefaultBackground)
		e.TextColor = cssColor(v.TextColor, domain.DefaultTextColor)
	case *domain.ImageSlide:
		e.Fit = v.ImageFit
	}
	return e
}

// Control is the data of the control view.
type Control struct {
	WindowID          string
	Total             int
	LiveNumber        int
	Current           *Stage
	CurrentKind       string
	Next              *Stage
	Selected          *Editor
	TakeLiveID        string
	DisplayURL        string
	RemoteURL         string
	StorageError      string
	DisplayBlocked    bool
	RemoteBlocked     bool
	DisplayBlockedMsg string
	RemoteBlockedMsg  string
	Filter            string
	FilterActive      bool
	FilterTerm        string
	Rows              []Row
	DragActive        bool
	CanUndo           bool
	CanRedo           bool
	ClearConfirm      string
	ResetConfirm      string
	DefaultBackground string
	DefaultTextColor  string
	EmptyDeckMessage  string
}

// Display is the data of the display view.
type Display struct {
	Stage   *Stage
	Waiting string
}

// RemoteCard is one of the three remote slots; nil Stage renders a spacer.
type RemoteCard struct {
	Caption string
	Action  string
	ID      string
	Label   string
	Stage   *Stage
}

// Remote is the data of the remote view.
type Remote struct {
	Empty   string
	Cards   []RemoteCard
	HasDeck bool
}

// Renderer executes the view templates.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	t, err := template.New("views").Funcs(template.FuncMap{
		"kindName": kindName,
	}).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

// MustNew is New for package-level initialisation.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

func kindName(k domain.Kind) string {
	if k == domain.KindImage {
		return "Image"
	}
	return "Text"
}

// ControlData projects a control window's state. base is the page URL used
// for the display and remote links.
func ControlData(st deck.State, base string) Control {
	d := st.Deck
	c := Control{
		WindowID:          st.WindowID,
		Total:             d.Len(),
		DisplayURL:        windows.URL(base, windows.Display),
		RemoteURL:         windows.URL(base, windows.Remote),
		StorageError:      st.View.StorageError,
		DisplayBlocked:    st.View.DisplayBlocked,
		RemoteBlocked:     st.View.RemoteBlocked,
		DisplayBlockedMsg: windows.DisplayBlockedMessage,
		RemoteBlockedMsg:  windows.RemoteBlockedMessage,
		Filter:            st.View.Filter,
		FilterTerm:        strings.TrimSpace(st.View.Filter),
		DragActive:        st.View.DragActive,
		CanUndo:           st.CanUndo,
		CanRedo:           st.CanRedo,
		ClearConfirm:      deck.ClearConfirmMessage,
		ResetConfirm:      deck.ResetConfirmMessage,
		DefaultBackground: domain.DefaultBackground,
		DefaultTextColor:  domain.DefaultTextColor,
		EmptyDeckMessage:  EmptyDeckMessage,
	}
	c.FilterActive = c.FilterTerm != ""
	current := d.Live()
	c.CurrentKind = "Idle"
	if current != nil {
		c.LiveNumber = d.CurrentIndex + 1
		c.Current = newStage(current, "preview")
		c.CurrentKind = string(current.Kind())
	}
	c.Next = newStage(d.At(d.CurrentIndex+1), "preview")
	selected := d.Find(st.View.SelectedID)
	c.Selected = newEditor(selected, st.View.ReplaceTargetID)
	if selected != nil && (current == nil || selected.Meta().ID != current.Meta().ID) {
		c.TakeLiveID = selected.Meta().ID
	}
	for _, i := range d.Visible(st.View.Filter) {
		s := d.At(i)
		c.Rows = append(c.Rows, Row{
			ID:       s.Meta().ID,
			Number:   i + 1,
			Label:    domain.DisplayLabel(s),
			KindName: kindName(s.Kind()),
			Active:   i == d.CurrentIndex,
			Selected: s.Meta().ID == st.View.SelectedID,
			Stage:    newStage(s, "list"),
		})
	}
	return c
}

// DisplayData projects a display window's state.
func DisplayData(st deck.State) Display {
	return Display{Stage: newStage(st.Deck.Live(), "display"), Waiting: WaitingMessage}
}

// RemoteData projects a remote window's state.
func RemoteData(st deck.State) Remote {
	d := st.Deck
	if d.Len() == 0 {
		return Remote{Empty: RemoteEmptyMessage}
	}
	card := func(s domain.Slide, caption, action string) RemoteCard {
		if s == nil {
			return RemoteCard{}
		}
		return RemoteCard{
			Caption: caption,
			Action:  action,
			ID:      s.Meta().ID,
			Label:   RemoteLabel(domain.DisplayLabel(s)),
			Stage:   newStage(s, "remote"),
		}
	}
	i := d.CurrentIndex
	return Remote{HasDeck: true, Cards: []RemoteCard{
		card(d.At(i-1), "Previous", "prev"),
		card(d.At(i), "Live", "current"),
		card(d.At(i+1), "Next Up", "next"),
	}}
}

// Render returns the HTML fragment for st's role.
func (r *Renderer) Render(st deck.State, base string) (string, error) {
	var buf bytes.Buffer
	var err error
	switch st.Role {
	case deck.RoleDisplay:
		err = r.tmpl.ExecuteTemplate(&buf, "display", DisplayData(st))
	case deck.RoleRemote:
		err = r.tmpl.ExecuteTemplate(&buf, "remote", RemoteData(st))
	default:
		err = r.tmpl.ExecuteTemplate(&buf, "control", ControlData(st, base))
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", st.Role, err)
	}
	return buf.String(), nil
}

// Shell is the data of the page that hosts a window.
type Shell struct {
	Role  deck.Role
	Title string
}

// Page writes the page shell for role. The page connects back over a
// websocket and swaps in rendered fragments.
func (r *Renderer) Page(w io.Writer, role deck.Role) error {
	title := "Portrait Slide Deck"
	switch role {
	case deck.RoleDisplay:
		title = "Portrait Slide Deck · Display"
	case deck.RoleRemote:
		title = "Portrait Slide Deck · Remote"
	}
	return r.tmpl.ExecuteTemplate(w, "page", Shell{Role: role, Title: title})
}
