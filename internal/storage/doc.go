/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage persists the deck in the shared slot.
// A DeckStore is one window's handle on the slot: it loads leniently (anything unreadable becomes an empty deck),
// saves with capacity errors turned into an operator banner plus a single alert, and never writes from a display window.
// It also names and writes export files and the crash autosave.
package storage
