/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed deck.schema.json
var deckSchemaJSON []byte

//go:embed snapshot.schema.json
var snapshotSchemaJSON []byte

var (
	schemaOnce     sync.Once
	deckSchema     *gojsonschema.Schema
	snapshotSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		deckSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(deckSchemaJSON))
		if schemaErr != nil {
			return
		}
		snapshotSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(snapshotSchemaJSON))
	})
	return schemaErr
}

// ValidateDocument checks that data has the outer shape of a deck export.
func ValidateDocument(data []byte) error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("load deck schema: %w", err)
	}
	return validate(deckSchema, data)
}

// ValidateSnapshot checks data against the strict shape this package writes.
func ValidateSnapshot(data []byte) error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("load snapshot schema: %w", err)
	}
	return validate(snapshotSchema, data)
}

func validate(s *gojsonschema.Schema, data []byte) error {
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
