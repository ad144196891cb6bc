/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package slot

import (
	"errors"
	"fmt"
	"syscall"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Quota signatures as reported by browser storage implementations.
const (
	NameQuotaExceeded       = "QuotaExceededError"
	NameFirefoxQuotaReached = "NS_ERROR_DOM_QUOTA_REACHED"
	CodeQuotaExceeded       = 22
	CodeFirefoxQuotaReached = 1014
)

// QuotaError reports a write that would push the slot over its byte budget.
type QuotaError struct {
	Name  string
	Code  int
	Limit int // configured budget in bytes
	Need  int // total size the write would have produced
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: slot needs %d bytes, budget is %d", e.name(), e.Need, e.Limit)
}

func (e *QuotaError) name() string {
	if e.Name == "" {
		return NameQuotaExceeded
	}
	return e.Name
}

// ErrorName and ErrorCode expose the signature checked by IsQuotaError.
func (e *QuotaError) ErrorName() string { return e.name() }
func (e *QuotaError) ErrorCode() int {
	if e.Code == 0 {
		return CodeQuotaExceeded
	}
	return e.Code
}

func newQuotaError(limit, need int) *QuotaError {
	return &QuotaError{Name: NameQuotaExceeded, Code: CodeQuotaExceeded, Limit: limit, Need: need}
}

// IsQuotaError reports whether err anywhere in its chain is a capacity
// failure: a named or coded quota error, a full disk or quota on the
// filesystem, or a full SQLite database.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var named interface{ ErrorName() string }
	if errors.As(err, &named) {
		switch named.ErrorName() {
		case NameQuotaExceeded, NameFirefoxQuotaReached:
			return true
		}
	}
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) {
		switch coded.ErrorCode() {
		case CodeQuotaExceeded, CodeFirefoxQuotaReached:
			return true
		}
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_FULL {
		return true
	}
	return false
}
