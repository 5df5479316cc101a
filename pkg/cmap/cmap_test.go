/*
 * Copyright 2025 The DriftSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmap_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/pkg/cmap"
)

func TestMap(t *testing.T) {
	t.Run("set and get test", func(t *testing.T) {
		m := cmap.New[string, int]()

		m.Set("a", 1)
		m.Set("b", 2)

		value, ok := m.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, value)

		_, ok = m.Get("missing")
		assert.False(t, ok)

		m.Set("a", 3)
		value, _ = m.Get("a")
		assert.Equal(t, 3, value)
	})

	t.Run("upsert test", func(t *testing.T) {
		m := cmap.New[string, int]()

		res := m.Upsert("counter", func(value int, exists bool) int {
			assert.False(t, exists)
			return 1
		})
		assert.Equal(t, 1, res)

		res = m.Upsert("counter", func(value int, exists bool) int {
			assert.True(t, exists)
			return value + 1
		})
		assert.Equal(t, 2, res)
	})

	t.Run("conditional delete test", func(t *testing.T) {
		m := cmap.New[string, int]()
		m.Set("a", 1)

		assert.False(t, m.Delete("a", func(value int, exists bool) bool {
			return value > 1
		}))
		_, ok := m.Get("a")
		assert.True(t, ok)

		assert.True(t, m.Delete("a", func(value int, exists bool) bool {
			return exists
		}))
		_, ok = m.Get("a")
		assert.False(t, ok)
	})

	t.Run("len keys values test", func(t *testing.T) {
		m := cmap.New[string, int]()
		for i := 0; i < 10; i++ {
			m.Set(fmt.Sprintf("key-%d", i), i)
		}

		assert.Equal(t, 10, m.Len())
		assert.Len(t, m.Keys(), 10)
		assert.Len(t, m.Values(), 10)
	})

	t.Run("concurrent access test", func(t *testing.T) {
		m := cmap.New[string, int]()

		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("key-%d", i%10)
				m.Upsert(key, func(value int, exists bool) int {
					return value + 1
				})
				m.Get(key)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 10, m.Len())
		total := 0
		for _, v := range m.Values() {
			total += v
		}
		assert.Equal(t, 100, total)
	})
}
