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

package segio

import "io"

// lineBuffer 可扩容的读缓冲区，未读窗口为data[pos:limit]。
// 不变量：0 <= pos <= limit <= len(data)
type lineBuffer struct {
	data  []byte
	pos   int
	limit int
}

func newLineBuffer(size int) *lineBuffer {
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	return &lineBuffer{data: make([]byte, size)}
}

// window 未读的数据
func (b *lineBuffer) window() []byte {
	return b.data[b.pos:b.limit]
}

func (b *lineBuffer) empty() bool {
	return b.pos == b.limit
}

func (b *lineBuffer) advance(n int) {
	b.pos += n
}

// discard 丢弃全部未读数据
func (b *lineBuffer) discard() int {
	n := b.limit - b.pos
	b.pos = b.limit
	return n
}

// fill 从r读取更多数据。pos > 0时先把未读数据移动到头部，
// pos == 0且缓冲区已满时说明一行数据占满了整个缓冲区，容量翻倍。
func (b *lineBuffer) fill(r io.Reader) (int, error) {
	if b.pos > 0 {
		n := copy(b.data, b.data[b.pos:b.limit])
		b.pos, b.limit = 0, n
	}
	if b.limit == len(b.data) {
		grown := make([]byte, len(b.data)*2)
		copy(grown, b.data[:b.limit])
		b.data = grown
	}

	n, err := r.Read(b.data[b.limit:])
	b.limit += n
	return n, err
}

// indexTerminator 返回第一个LF或CR的下标，没有则返回-1
func indexTerminator(p []byte) int {
	for i, c := range p {
		if c == LF || c == CR {
			return i
		}
	}
	return -1
}
