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
	"errors"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/imaging"
)

// Upload is one file handed in by the browser.
type Upload struct {
	Name string
	MIME string
	Data []byte
}

// IsImage reports whether the upload declares an image type.
func (u Upload) IsImage() bool { return strings.HasPrefix(strings.ToLower(u.MIME), "image/") }

// LabelFromFileName drops the extension: "poster.final.png" becomes "poster.final".
func LabelFromFileName(name string) string {
	ext := path.Ext(name)
	if len(ext) > 1 {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// loadUpload normalises one upload. optimized is false when the original
// bytes were kept. Unless strict, a file that cannot be decoded here is kept
// as uploaded so the browser can still try to draw it; strict callers get a
// *FileError instead. Empty files always fail.
func (s *Session) loadUpload(up Upload, strict bool) (payload string, optimized bool, ferr *FileError) {
	if len(up.Data) == 0 {
		return "", false, &FileError{Name: up.Name, UserMessage: ImageReadFailedMessage, Err: errors.New("empty file")}
	}
	res := s.norm.NormalizeBytes(up.Data, up.MIME)
	if res.Err == nil {
		return res.Payload, true, nil
	}
	if strict && errors.Is(res.Err, imaging.ErrDecode) {
		return "", false, &FileError{Name: up.Name, Err: res.Err}
	}
	s.log.Warn("image kept unoptimised", slog.String("file", up.Name), slog.Any("err", res.Err))
	return res.Payload, false, nil
}

// InsertImages appends one image slide per image upload, in upload order, and
// selects the last one added. Decoding runs concurrently outside the session
// lock. Failed files are reported together in a *BatchError; the rest are
// still added.
func (s *Session) InsertImages(ctx context.Context, uploads []Upload) ([]string, error) {
	if err := s.controlOnly("insert-images"); err != nil {
		return nil, err
	}
	var files []Upload
	for _, up := range uploads {
		if up.IsImage() {
			files = append(files, up)
		}
	}
	if len(files) == 0 {
		return nil, nil
	}

	payloads := make([]string, len(files))
	optimized := make([]bool, len(files))
	failures := make([]*FileError, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, up := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			payloads[i], optimized[i], failures[i] = s.loadUpload(up, false)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var slides []domain.Slide
	var ids []string
	batch := &BatchError{}
	for i, up := range files {
		if failures[i] != nil {
			batch.Failed = append(batch.Failed, failures[i])
			continue
		}
		slide := domain.NewImageSlide(LabelFromFileName(up.Name), payloads[i], optimized[i])
		slides = append(slides, slide)
		ids = append(ids, slide.ID)
	}
	batch.Added = len(slides)

	s.mu.Lock()
	if len(slides) > 0 {
		s.recordLocked("")
		s.deck.Slides = append(s.deck.Slides, slides...)
		s.view.SelectedID = ids[len(ids)-1]
	}
	if len(batch.Failed) > 0 {
		s.log.Warn("some images failed to load", slog.Any("err", batch))
		s.view.Alert = batch.Message()
	}
	switch {
	case len(slides) > 0:
		s.persistAndRenderLocked(ctx)
	case len(batch.Failed) > 0:
		s.renderLocked()
	}
	s.mu.Unlock()

	if len(batch.Failed) > 0 {
		return ids, batch
	}
	return ids, nil
}

// ReplaceImage swaps the picture of an image slide, keeping its id, fit and
// position. The label follows the new file name. On failure the deck is left
// alone and the operator is told.
func (s *Session) ReplaceImage(ctx context.Context, id string, up Upload) error {
	if err := s.controlOnly("replace-image"); err != nil {
		return err
	}
	if err := s.checkImageSlide(id); err != nil {
		return err
	}
	payload, optimized, ferr := s.loadUpload(up, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ReplaceTargetID = ""
	if ferr != nil {
		s.log.Warn("unable to replace image", slog.Any("err", ferr))
		s.view.Alert = ReplaceImageFailedMessage
		if ferr.UserMessage != "" {
			s.view.Alert = ferr.UserMessage
		}
		s.renderLocked()
		return ferr
	}
	img, ok := s.deck.Find(id).(*domain.ImageSlide)
	if !ok {
		// Deleted or replaced by another window while decoding.
		return ErrNotFound
	}
	s.recordLocked("")
	img.ImageData = payload
	img.Label = LabelFromFileName(up.Name)
	if img.ImageFit == "" {
		img.ImageFit = domain.FitCover
	}
	img.ImageOptimized = optimized
	s.persistAndRenderLocked(ctx)
	return nil
}

func (s *Session) checkImageSlide(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slide := s.deck.Find(id)
	if slide == nil {
		return ErrNotFound
	}
	if slide.Kind() != domain.KindImage {
		return ErrNotImage
	}
	return nil
}

// SweepImages re-normalises stored image slides that are over budget and not
// yet optimised, one at a time, saving after each. It returns how many slides
// were updated. A slide that cannot be re-encoded keeps its picture and is
// marked optimised so it is not retried.
func (s *Session) SweepImages(ctx context.Context) (int, error) {
	if err := s.controlOnly("sweep-images"); err != nil {
		return 0, err
	}
	type target struct{ id, payload string }
	var targets []target
	s.mu.Lock()
	for _, sl := range s.deck.Slides {
		if s.norm.NeedsSweep(sl) {
			targets = append(targets, target{sl.Meta().ID, sl.(*domain.ImageSlide).ImageData})
		}
	}
	s.mu.Unlock()

	updated := 0
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		res := s.norm.Normalize(t.payload, imaging.MIMEFromDataURL(t.payload))
		if res.Err != nil {
			s.log.Warn("unable to normalize stored image", slog.String("slide", t.id), slog.Any("err", res.Err))
		}
		s.mu.Lock()
		img, ok := s.deck.Find(t.id).(*domain.ImageSlide)
		if ok {
			changed := false
			// A picture swapped in meanwhile is newer than this result.
			if img.ImageData == t.payload && res.Payload != img.ImageData {
				img.ImageData = res.Payload
				changed = true
			}
			if !img.ImageOptimized {
				img.ImageOptimized = true
				changed = true
			}
			if changed {
				updated++
				s.persistAndRenderLocked(ctx)
			}
		}
		s.mu.Unlock()
	}
	if updated > 0 {
		s.log.Info("stored images normalised", slog.Int("count", updated))
	}
	return updated, nil
}
