/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package slot

import (
	"bytes"
	"context"
	"sync"

	"portraitdeck/internal/feed"
)

// Memory keeps values in a map. It lives as long as the server process.
type Memory struct {
	mu     sync.Mutex
	data   map[string][]byte
	quota  int
	hub    *feed.Hub
	closed bool
}

// NewMemory returns an empty slot. quota is a byte budget over all keys and
// values; zero disables it.
func NewMemory(quota int) *Memory {
	return &Memory{data: make(map[string][]byte), quota: quota, hub: feed.NewHub()}
}

func (m *Memory) Subscribe(key, subscriberID string) *feed.Subscription {
	return m.hub.Subscribe(key, subscriberID)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, origin string) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if old, ok := m.data[key]; ok && bytes.Equal(old, value) {
		return nil
	}
	if m.quota > 0 {
		need := len(key) + len(value)
		for k, v := range m.data {
			if k != key {
				need += len(k) + len(v)
			}
		}
		if need > m.quota {
			return newQuotaError(m.quota, need)
		}
	}
	v := bytes.Clone(value)
	m.data[key] = v
	m.hub.Publish(feed.Change{Key: key, Value: bytes.Clone(v), Origin: origin})
	return nil
}

func (m *Memory) Remove(_ context.Context, key, origin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.data[key]; !ok {
		return nil
	}
	delete(m.data, key)
	m.hub.Publish(feed.Change{Key: key, Removed: true, Origin: origin})
	return nil
}

// Close ends all subscriptions. Later calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.hub.Close()
	return nil
}
