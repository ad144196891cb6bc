/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"errors"
	"fmt"
	"log/slog"

	"portraitdeck/internal/deck"
	"portraitdeck/internal/domain"
	"portraitdeck/internal/windows"
)

// Action is a page-to-server message.
type Action struct {
	Action  string            `json:"action"`
	ID      string            `json:"id,omitempty"`
	Field   string            `json:"field,omitempty"`
	Value   string            `json:"value,omitempty"`
	Start   int               `json:"start,omitempty"`
	End     int               `json:"end,omitempty"`
	Active  bool              `json:"active,omitempty"`
	Kind    windows.Kind      `json:"kind,omitempty"`
	Blocked bool              `json:"blocked,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// dispatch applies one action to the window's session. Refused operations
// are logged and otherwise ignored; the page simply does not change.
func (w *window) dispatch(a Action) {
	if err := w.apply(a); err != nil {
		lvl := slog.LevelWarn
		if errors.Is(err, deck.ErrReadOnly) || errors.Is(err, deck.ErrNotFound) {
			lvl = slog.LevelDebug
		}
		w.log.Log(w.ctx, lvl, "action failed", slog.String("action", a.Action), slog.Any("err", err))
	}
}

func (w *window) apply(a Action) error {
	ctx := w.ctx
	s := w.session
	switch a.Action {
	case "next":
		return s.MoveLive(ctx, 1)
	case "prev":
		return s.MoveLive(ctx, -1)
	case "current":
		return nil
	case "jumpTo":
		return s.GoTo(ctx, a.ID)
	case "selectSlide":
		return s.Select(a.ID)
	case "moveUp":
		return s.Reorder(ctx, a.ID, deck.Earlier)
	case "moveDown":
		return s.Reorder(ctx, a.ID, deck.Later)
	case "duplicateSlide":
		_, err := s.Duplicate(ctx, a.ID)
		return err
	case "deleteSlide":
		return s.Delete(ctx, a.ID)
	case "addText":
		f := a.Fields
		_, err := s.InsertText(ctx, deck.TextFields{
			Title:      f["title"],
			Body:       f["body"],
			Footnote:   f["footnote"],
			Eyebrow:    f["eyebrow"],
			Background: f["background"],
			TextColor:  f["textColor"],
			Align:      f["align"],
		})
		return err
	case "edit":
		return s.UpdateField(ctx, a.ID, domain.Field(a.Field), a.Value,
			&deck.FocusHint{SlideID: a.ID, Field: a.Field, Start: a.Start, End: a.End})
	case "search":
		return s.SetFilter(a.Value, &deck.FocusHint{Field: "deck-search", Start: a.Start, End: a.End})
	case "drag":
		return s.SetDragActive(a.Active)
	case "replaceImage":
		return s.SetReplaceTarget(a.ID)
	case "replaceCancel":
		return s.SetReplaceTarget("")
	case "blocked":
		return s.MarkBlocked(a.Kind, a.Blocked)
	case "loadSample":
		return s.LoadSample(ctx)
	case "clearDeck":
		return s.Clear(ctx)
	case "resetStorage":
		return s.ResetStorage(ctx)
	case "undo":
		_, err := s.Undo(ctx)
		return err
	case "redo":
		_, err := s.Redo(ctx)
		return err
	case "exportDeck":
		return w.requestDownload()
	case "openDisplay":
		return w.ensure(windows.Display)
	case "openRemote":
		return w.ensure(windows.Remote)
	case "unload":
		w.unloading.Store(true)
		return nil
	default:
		return fmt.Errorf("unknown action %q", a.Action)
	}
}

func (w *window) ensure(kind windows.Kind) error {
	if w.role != deck.RoleControl {
		return deck.ErrReadOnly
	}
	d, open := w.srv.registry.Ensure(kind, w.base, w.origin, true)
	if !open {
		return nil
	}
	return w.enqueue(d)
}

// requestDownload points the page at the JSON export. An empty deck is a
// no-op.
func (w *window) requestDownload() error {
	_, name, ok, err := w.session.Export()
	if err != nil || !ok {
		return err
	}
	return w.enqueue(Frame{Type: FrameDownload, URL: "/api/windows/" + w.id + "/export", Filename: name})
}
