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

import (
	"sync"
	"sync/atomic"
	"time"
)

type bufferState int32

const (
	// bufferFree 缓冲区在池中空闲
	bufferFree bufferState = iota
	// bufferFilling 缓冲区被生产者持有，正在写入
	bufferFilling
	// bufferFlushing 缓冲区被刷盘协程持有，正在刷盘
	bufferFlushing
)

// Buffer 固定容量的字节缓冲区，通过写偏移量判断是否需要交给刷盘协程。
// 同一时刻只属于一个阶段(池、生产者、刷盘协程)，所有权只通过BufferPool转移。
type Buffer struct {
	// 连续的内存空间
	data []byte
	// 当前写入的偏移量，0 <= w <= capacity
	w int
	// buffer的容量
	capacity int
	// 当前所有者
	state atomic.Int32
	// 独立刷盘的超长记录不属于缓冲池
	standalone bool
}

func newBuffer(capacity int) *Buffer {
	return &Buffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// newStandaloneBuffer 包装一条不经过缓冲区、需要独立刷盘的记录
func newStandaloneBuffer(record []byte) *Buffer {
	b := &Buffer{
		data:       record,
		w:          len(record),
		capacity:   len(record),
		standalone: true,
	}
	b.state.Store(int32(bufferFlushing))
	return b
}

// free 缓冲区剩余的空间，字节数
func (b *Buffer) free() int {
	return b.capacity - b.w
}

// fits 判断记录和分隔符是否能放入当前缓冲区
func (b *Buffer) fits(n int) bool {
	return b.w+n <= b.capacity
}

// Len 已写入的有效字节数
func (b *Buffer) Len() int {
	return b.w
}

// Bytes 返回有效前缀，只在持有者调用
func (b *Buffer) Bytes() []byte {
	return b.data[:b.w]
}

// reset 重置写偏移量，数据区不重新分配
func (b *Buffer) reset() {
	b.w = 0
}

// write 原地追加记录和分隔符，调用方需要先通过fits确认空间足够
func (b *Buffer) write(record, terminator []byte) {
	b.w += copy(b.data[b.w:], record)
	b.w += copy(b.data[b.w:], terminator)
}

func (b *Buffer) transfer(from, to bufferState) bool {
	return b.state.CompareAndSwap(int32(from), int32(to))
}

// BufferPool 固定数量缓冲区的池，为写入提供背压：
// 没有空闲缓冲区时Acquire阻塞，Release永不阻塞。
type BufferPool struct {
	free     chan *Buffer
	size     int
	capacity int
	// 已经从池中取出、尚未归还的缓冲区数量
	outstanding atomic.Int32
	closeOnce   sync.Once
	closed      chan struct{}
}

// NewBufferPool 创建包含size个容量为capacity的缓冲区的池
func NewBufferPool(size, capacity int) *BufferPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}

	p := &BufferPool{
		free:     make(chan *Buffer, size),
		size:     size,
		capacity: capacity,
		closed:   make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		p.free <- newBuffer(capacity)
	}

	return p
}

// Acquire 获取一个空闲缓冲区，池为空时阻塞直到刷盘协程归还或池被关闭
func (p *BufferPool) Acquire() (*Buffer, error) {
	var b *Buffer
	select {
	case b = <-p.free:
	default:
		start := time.Now()
		mPoolWaits.Inc()
		select {
		case b = <-p.free:
		case <-p.closed:
			return nil, ErrPoolClosed
		}
		mPoolWaitSeconds.Observe(time.Since(start).Seconds())
	}

	if !b.transfer(bufferFree, bufferFilling) {
		// 不可能出现，说明同一个缓冲区被重复归还
		panic("segio: acquired a buffer that is still owned by another stage")
	}
	b.reset()
	p.outstanding.Add(1)
	return b, nil
}

// Release 归还缓冲区，池已关闭或已满时直接丢弃
func (p *BufferPool) Release(b *Buffer) bool {
	if b == nil || b.standalone {
		return false
	}

	select {
	case <-p.closed:
		return false
	default:
	}

	b.state.Store(int32(bufferFree))
	select {
	case p.free <- b:
		p.outstanding.Add(-1)
		return true
	default:
		return false
	}
}

// Available 池中空闲缓冲区的数量
func (p *BufferPool) Available() int {
	return len(p.free)
}

// Size 池管理的缓冲区总数
func (p *BufferPool) Size() int {
	return p.size
}

// Outstanding 被生产者或刷盘协程持有的缓冲区数量
func (p *BufferPool) Outstanding() int {
	return int(p.outstanding.Load())
}

// Close 关闭缓冲池，唤醒阻塞的Acquire并丢弃所有空闲缓冲区
func (p *BufferPool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		for {
			select {
			case <-p.free:
			default:
				return
			}
		}
	})
}
