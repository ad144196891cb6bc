/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package deck

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/storage"
	"portraitdeck/internal/windows"
)

// TextFields is the text slide form.
type TextFields struct {
	Title      string
	Body       string
	Footnote   string
	Eyebrow    string
	Background string
	TextColor  string
	Align      string
}

// Direction moves a slide within the deck.
type Direction int

const (
	Earlier Direction = -1
	Later   Direction = 1
)

// InsertText appends a text slide built from the form and selects it.
func (s *Session) InsertText(ctx context.Context, f TextFields) (string, error) {
	if err := s.controlOnly("insert-text"); err != nil {
		return "", err
	}
	title := strings.TrimSpace(f.Title)
	label := title
	if label == "" {
		label = UntitledTextLabel
	}
	align := domain.AlignCenter
	if strings.TrimSpace(f.Align) == string(domain.AlignLeft) {
		align = domain.AlignLeft
	}
	slide := domain.NewTextSlide(domain.TextSlide{
		SlideMeta:  domain.SlideMeta{Label: label},
		Title:      title,
		Body:       strings.TrimSpace(f.Body),
		Footnote:   strings.TrimSpace(f.Footnote),
		Eyebrow:    strings.TrimSpace(f.Eyebrow),
		Background: f.Background,
		TextColor:  f.TextColor,
		Align:      align,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("")
	s.deck.Slides = append(s.deck.Slides, slide)
	s.view.SelectedID = slide.ID
	s.persistAndRenderLocked(ctx)
	return slide.ID, nil
}

// Delete removes a slide. The live index stays put unless it fell off the
// end; a deleted selection moves to the live slide.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.controlOnly("delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.deck.IndexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.recordLocked("")
	s.deck.Slides = append(s.deck.Slides[:i:i], s.deck.Slides[i+1:]...)
	if s.deck.CurrentIndex >= s.deck.Len() {
		s.deck.CurrentIndex = s.deck.Len() - 1
	}
	if s.view.SelectedID == id {
		s.view.SelectedID = ""
		if live := s.deck.At(s.deck.CurrentIndex); live != nil {
			s.view.SelectedID = live.Meta().ID
		}
	}
	s.persistAndRenderLocked(ctx)
	return nil
}

// Duplicate inserts a deep copy right after the slide and selects it.
func (s *Session) Duplicate(ctx context.Context, id string) (string, error) {
	if err := s.controlOnly("duplicate"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.deck.IndexOf(id)
	if i < 0 {
		return "", ErrNotFound
	}
	s.recordLocked("")
	orig := s.deck.Slides[i]
	clone := orig.Clone()
	meta := clone.Meta()
	meta.ID = domain.NewID()
	meta.Label = domain.DisplayLabel(orig) + " (copy)"
	meta.CreatedAt = domain.NowMillis()

	slides := make([]domain.Slide, 0, s.deck.Len()+1)
	slides = append(slides, s.deck.Slides[:i+1]...)
	slides = append(slides, clone)
	slides = append(slides, s.deck.Slides[i+1:]...)
	s.deck.Slides = slides
	s.view.SelectedID = meta.ID
	s.persistAndRenderLocked(ctx)
	return meta.ID, nil
}

// Reorder swaps a slide with its neighbour. Moving past either end does
// nothing. The live index follows the slide when it was live.
func (s *Session) Reorder(ctx context.Context, id string, dir Direction) error {
	if err := s.controlOnly("reorder"); err != nil {
		return err
	}
	if dir != Earlier && dir != Later {
		return fmt.Errorf("reorder: invalid direction %d", dir)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.deck.IndexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	target := i + int(dir)
	if target < 0 || target >= s.deck.Len() {
		return nil
	}
	s.recordLocked("")
	s.deck.Slides[i], s.deck.Slides[target] = s.deck.Slides[target], s.deck.Slides[i]
	if s.deck.CurrentIndex == i {
		s.deck.CurrentIndex = target
	}
	s.persistAndRenderLocked(ctx)
	return nil
}

// UpdateField edits one field of a slide. Consecutive edits of the same field
// coalesce into one undo step.
func (s *Session) UpdateField(ctx context.Context, id string, field domain.Field, value string, focus *FocusHint) error {
	if err := s.controlOnly("update-field"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slide := s.deck.Find(id)
	if slide == nil {
		return ErrNotFound
	}
	// Validate on a copy so a rejected value records no history.
	if err := domain.SetField(slide.Clone(), field, value); err != nil {
		return err
	}
	s.recordLocked("field:" + id + ":" + string(field))
	_ = domain.SetField(slide, field, value)
	if focus != nil {
		f := *focus
		s.view.Focus = &f
	}
	s.persistAndRenderLocked(ctx)
	return nil
}

// MoveLive steps the live slide by delta and selects it.
func (s *Session) MoveLive(ctx context.Context, delta int) error {
	if err := s.allow("move-live", RoleControl, RoleRemote); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deck.Len() == 0 {
		return nil
	}
	s.deck.CurrentIndex = domain.ClampIndex(s.deck.CurrentIndex+delta, s.deck.Len())
	s.view.SelectedID = s.deck.Live().Meta().ID
	s.persistAndRenderLocked(ctx)
	return nil
}

// GoTo makes a slide live and selects it.
func (s *Session) GoTo(ctx context.Context, id string) error {
	if err := s.allow("go-to", RoleControl, RoleRemote); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.deck.IndexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.deck.CurrentIndex = i
	s.view.SelectedID = id
	s.persistAndRenderLocked(ctx)
	return nil
}

// Select opens a slide in the editor.
func (s *Session) Select(id string) error {
	if err := s.controlOnly("select"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deck.IndexOf(id) < 0 {
		return ErrNotFound
	}
	s.view.SelectedID = id
	s.renderLocked()
	return nil
}

// SetFilter changes the deck list search text.
func (s *Session) SetFilter(query string, focus *FocusHint) error {
	if err := s.controlOnly("filter"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Filter = query
	if focus != nil {
		f := *focus
		s.view.Focus = &f
	}
	s.renderLocked()
	return nil
}

// SetDragActive toggles the drop overlay.
func (s *Session) SetDragActive(active bool) error {
	if err := s.controlOnly("drag"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.DragActive == active {
		return nil
	}
	s.view.DragActive = active
	s.renderLocked()
	return nil
}

// SetReplaceTarget remembers which image slide the next upload replaces.
func (s *Session) SetReplaceTarget(id string) error {
	if err := s.controlOnly("replace-target"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ReplaceTargetID = id
	return nil
}

// MarkBlocked records whether the browser blocked a satellite popup.
func (s *Session) MarkBlocked(kind windows.Kind, blocked bool) error {
	if err := s.controlOnly("mark-blocked"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	flag := &s.view.DisplayBlocked
	if kind == windows.Remote {
		flag = &s.view.RemoteBlocked
	}
	if *flag == blocked {
		return nil
	}
	*flag = blocked
	s.renderLocked()
	return nil
}

// Import replaces the deck with an export document, then sweeps its
// oversized images before returning.
func (s *Session) Import(ctx context.Context, data []byte) (domain.ImportReport, error) {
	if err := s.controlOnly("import"); err != nil {
		return domain.ImportReport{}, err
	}
	next, report, err := domain.ParseImport(data)
	if err != nil {
		s.log.Warn("import rejected", slog.Any("err", err))
		s.Alert(domain.ImportFailedMessage)
		return report, err
	}
	s.mu.Lock()
	s.recordLocked("")
	s.deck = next
	s.view.SelectedID = ""
	if live := s.deck.Live(); live != nil {
		s.view.SelectedID = live.Meta().ID
	}
	s.persistAndRenderLocked(ctx)
	s.mu.Unlock()
	s.log.Info("deck imported",
		slog.Int("received", report.Received),
		slog.Int("accepted", report.Accepted),
		slog.Int("dropped", report.Dropped))
	if _, err := s.SweepImages(ctx); err != nil {
		s.log.Warn("image sweep after import stopped", slog.Any("err", err))
	}
	return report, nil
}

// Export returns the export document and its download name. ok is false for
// an empty deck.
func (s *Session) Export() (data []byte, filename string, ok bool, err error) {
	if err := s.controlOnly("export"); err != nil {
		return nil, "", false, err
	}
	d := s.Deck()
	if d.Len() == 0 {
		return nil, "", false, nil
	}
	data, err = domain.EncodeExport(d)
	if err != nil {
		return nil, "", false, fmt.Errorf("encode export: %w", err)
	}
	return data, storage.ExportFileName(s.now()), true, nil
}

// Clear wipes the deck and removes the saved copy.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.controlOnly("clear"); err != nil {
		return err
	}
	return s.wipe(ctx)
}

// ResetStorage is Clear offered from the storage warning; it also drops the
// warning.
func (s *Session) ResetStorage(ctx context.Context) error {
	if err := s.controlOnly("reset-storage"); err != nil {
		return err
	}
	return s.wipe(ctx)
}

func (s *Session) wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("")
	s.deck = domain.Deck{}
	s.view.SelectedID = ""
	s.view.StorageError = ""
	err := s.store.Reset(ctx)
	if err != nil {
		s.log.Warn("unable to remove saved deck", slog.Any("err", err))
	}
	s.renderLocked()
	return err
}

// LoadSample replaces the deck with the built-in sample and selects its first slide.
func (s *Session) LoadSample(ctx context.Context) error {
	if err := s.controlOnly("load-sample"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("")
	s.deck = domain.SampleDeck()
	s.deck.CurrentIndex = 0
	s.view.SelectedID = s.deck.Slides[0].Meta().ID
	s.persistAndRenderLocked(ctx)
	return nil
}

// Undo restores the deck before the last change. The live slide stays live
// when it still exists.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	if err := s.controlOnly("undo"); err != nil {
		return false, err
	}
	if s.hist == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.hist.Undo(s.deck)
	if !ok {
		return false, nil
	}
	s.restoreLocked(ctx, prev)
	return true, nil
}

// Redo reapplies the last undone change.
func (s *Session) Redo(ctx context.Context) (bool, error) {
	if err := s.controlOnly("redo"); err != nil {
		return false, err
	}
	if s.hist == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.hist.Redo(s.deck)
	if !ok {
		return false, nil
	}
	s.restoreLocked(ctx, next)
	return true, nil
}

func (s *Session) restoreLocked(ctx context.Context, d domain.Deck) {
	if live := s.deck.Live(); live != nil {
		if i := d.IndexOf(live.Meta().ID); i >= 0 {
			d.CurrentIndex = i
		}
	}
	s.deck = d
	s.persistAndRenderLocked(ctx)
}
