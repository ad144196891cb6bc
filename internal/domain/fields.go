/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"errors"
	"fmt"
)

// Field names an editable slide attribute, spelled as on the wire.
type Field string

const (
	FieldLabel      Field = "label"
	FieldTitle      Field = "title"
	FieldBody       Field = "body"
	FieldFootnote   Field = "footnote"
	FieldEyebrow    Field = "eyebrow"
	FieldBackground Field = "background"
	FieldTextColor  Field = "textColor"
	FieldAlign      Field = "align"
	FieldImageFit   Field = "imageFit"
)

var (
	ErrUnknownField = errors.New("field not editable on this slide")
	ErrInvalidValue = errors.New("invalid field value")
)

// SetField assigns value to field on s. Setting the title of a text slide
// whose label is empty also sets the label.
func SetField(s Slide, field Field, value string) error {
	if field == FieldLabel {
		s.Meta().Label = value
		return nil
	}
	switch v := s.(type) {
	case *TextSlide:
		switch field {
		case FieldTitle:
			v.Title = value
			if v.Label == "" {
				v.Label = value
			}
		case FieldBody:
			v.Body = value
		case FieldFootnote:
			v.Footnote = value
		case FieldEyebrow:
			v.Eyebrow = value
		case FieldBackground:
			v.Background = value
		case FieldTextColor:
			v.TextColor = value
		case FieldAlign:
			switch Align(value) {
			case AlignCenter, AlignLeft:
				v.Align = Align(value)
			default:
				return fmt.Errorf("%w: align %q", ErrInvalidValue, value)
			}
		default:
			return fmt.Errorf("%w: %s on text slide", ErrUnknownField, field)
		}
	case *ImageSlide:
		if field != FieldImageFit {
			return fmt.Errorf("%w: %s on image slide", ErrUnknownField, field)
		}
		switch Fit(value) {
		case FitCover, FitContain:
			v.ImageFit = Fit(value)
		default:
			return fmt.Errorf("%w: imageFit %q", ErrInvalidValue, value)
		}
	default:
		return ErrUnknownField
	}
	return nil
}
