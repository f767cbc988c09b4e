// Copyright 2025 TimeWtr
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"bytes"
	"strings"
	"sync"

	"github.com/chen3feng/stl4go"
	"github.com/cockroachdb/errors"
)

var (
	_ Store = (*MemStore)(nil)

	ErrWriterClosed = errors.New("writer is closed")
)

type memObject struct {
	data  []byte
	syncs int
}

// MemStore 内存实现，对象按路径保存在有序跳表中，Paths按字典序返回
type MemStore struct {
	mu sync.RWMutex
	sk *stl4go.SkipList[string, *memObject]
}

func NewMemStore() *MemStore {
	return &MemStore{
		sk: stl4go.NewSkipList[string, *memObject](),
	}
}

func (s *MemStore) find(p string) *memObject {
	v := s.sk.Find(p)
	if v == nil {
		return nil
	}
	return *v
}

func (s *MemStore) Open(p string) (Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj := s.find(p)
	if obj == nil {
		return nil, errors.Wrapf(ErrNotFound, "open %s", p)
	}
	// 读取的是打开时刻的快照
	data := append([]byte(nil), obj.data...)
	return nopCloser{bytes.NewReader(data)}, nil
}

func (s *MemStore) OpenAppend(p string) (Writer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.find(p) == nil {
		return nil, errors.Wrapf(ErrNotFound, "append %s", p)
	}
	return &memWriter{s: s, path: p}, nil
}

func (s *MemStore) Create(p string) (Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sk.Insert(p, &memObject{})
	return &memWriter{s: s, path: p}, nil
}

func (s *MemStore) Exists(p string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.find(p) != nil, nil
}

func (s *MemStore) Size(p string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj := s.find(p)
	if obj == nil {
		return 0, errors.Wrapf(ErrNotFound, "size %s", p)
	}
	return int64(len(obj.data)), nil
}

func (s *MemStore) Rename(src, dst string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := s.find(src)
	if obj == nil {
		return false, nil
	}
	s.sk.Remove(src)
	s.sk.Insert(dst, obj)
	return true, nil
}

func (s *MemStore) Delete(p string, recursive bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := s.sk.Remove(p)
	if !recursive {
		return deleted, nil
	}

	prefix := strings.TrimSuffix(p, "/") + "/"
	var children []string
	s.sk.ForEach(func(k string, _ *memObject) {
		if strings.HasPrefix(k, prefix) {
			children = append(children, k)
		}
	})
	for _, k := range children {
		s.sk.Remove(k)
	}

	return deleted || len(children) > 0, nil
}

// Paths 按字典序返回所有对象路径
func (s *MemStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, s.sk.Len())
	s.sk.ForEach(func(k string, _ *memObject) {
		paths = append(paths, k)
	})
	return paths
}

// Bytes 返回对象内容的副本，不存在时返回nil
func (s *MemStore) Bytes(p string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj := s.find(p)
	if obj == nil {
		return nil
	}
	return append([]byte(nil), obj.data...)
}

// Syncs 对象收到的Sync次数
func (s *MemStore) Syncs(p string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj := s.find(p)
	if obj == nil {
		return 0
	}
	return obj.syncs
}

// memWriter 直接追加到对象，写入对后续Open立即可见
type memWriter struct {
	s      *MemStore
	path   string
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if w.closed {
		return 0, ErrWriterClosed
	}
	obj := w.s.find(w.path)
	if obj == nil {
		return 0, errors.Wrapf(ErrNotFound, "write %s", w.path)
	}
	obj.data = append(obj.data, p...)
	return len(p), nil
}

func (w *memWriter) Sync() error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if obj := w.s.find(w.path); obj != nil {
		obj.syncs++
	}
	return nil
}

func (w *memWriter) Close() error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	w.closed = true
	return nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
