/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package deck

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReadOnly is returned when a window's role does not allow an operation.
	ErrReadOnly = errors.New("operation not allowed in this window")
	// ErrNotFound is returned when an operation names a slide that is not in the deck.
	ErrNotFound = errors.New("slide not found")
	// ErrNotImage is returned by ReplaceImage for text slides.
	ErrNotImage = errors.New("slide is not an image slide")
	// ErrNothingToExport is returned by Export for an empty deck.
	ErrNothingToExport = errors.New("deck is empty")
)

// Operator-facing texts.
const (
	ImageLoadFailedMessage    = "Unable to load one of those images. Try a different file."
	ImageReadFailedMessage    = "Unable to read one of those files. Try a different PNG or JPG poster."
	ReplaceImageFailedMessage = "Unable to replace that slide image. Try a different PNG or JPG."
	ClearConfirmMessage       = "Clear all slides? This removes the current deck from your browser storage."
	ResetConfirmMessage       = "Reset local deck storage? This clears every slide, removes the saved copy, and frees browser space."
	UntitledTextLabel         = "Untitled Text Slide"
)

// FileError is the failure of one upload.
type FileError struct {
	Name        string
	UserMessage string // optional, overrides the batch message
	Err         error
}

func (e *FileError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }

func (e *FileError) Unwrap() error { return e.Err }

// BatchError reports the uploads of one InsertImages call that failed. The
// uploads that succeeded were still added.
type BatchError struct {
	Failed []*FileError
	Added  int
}

func (e *BatchError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("%d of %d images failed: %s", len(e.Failed), len(e.Failed)+e.Added, strings.Join(names, ", "))
}

// Message is the single notice shown for the batch: the first failure's own
// message when it has one.
func (e *BatchError) Message() string {
	if len(e.Failed) > 0 && e.Failed[0].UserMessage != "" {
		return e.Failed[0].UserMessage
	}
	return ImageLoadFailedMessage
}
