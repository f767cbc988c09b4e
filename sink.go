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
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type syncer interface {
	Sync() error
}

type flusher interface {
	Flush() error
}

// Sink 异步缓冲写入器，采用缓冲池+单协程异步刷盘机制：
// 生产者把记录写入当前缓冲区，缓冲区写满后交给刷盘协程，再从缓冲池获取新的缓冲区。
// 缓冲池为空时生产者阻塞，生产者最多领先刷盘协程poolSize个缓冲区。
// 状态：Open -> Draining -> Closed，Drain结束后回到Open。
type Sink struct {
	out          io.Writer
	name         string
	terminator   []byte
	capacity     int
	poolSize     int
	drainTimeout time.Duration
	logger       *zap.Logger

	// 保护生产者侧的状态：cur、pool、tasks、done
	mu sync.Mutex
	// 生产者当前正在写入的缓冲区
	cur  *Buffer
	pool *BufferPool
	// 刷盘任务队列，FIFO，刷盘顺序就是写入顺序
	tasks chan *Buffer
	// 刷盘协程退出通知
	done   chan struct{}
	status atomic.Uint32

	// 串行化对底层流的物理写入
	ioMu        sync.Mutex
	flushErrors atomic.Int64
	// 上一次Drain时已经上报过的刷盘失败次数
	reported int64
}

// NewSink 包装底层输出流，name只用于日志
func NewSink(out io.Writer, name string, opts ...Option) *Sink {
	return newSink(out, name, applyOptions(opts))
}

func newSink(out io.Writer, name string, o options) *Sink {
	s := &Sink{
		out:          out,
		name:         name,
		terminator:   o.terminator,
		capacity:     o.bufferSize,
		poolSize:     o.poolSize,
		drainTimeout: o.drainTimeout,
		logger:       o.logger,
	}
	s.start()

	return s
}

// start 初始化缓冲池和刷盘协程，调用方需要持有mu或处于构造阶段
func (s *Sink) start() {
	s.pool = NewBufferPool(s.poolSize, s.capacity)
	s.tasks = make(chan *Buffer, s.poolSize*2)
	s.done = make(chan struct{})
	s.cur = nil
	s.status.Store(OpenStatus)

	go s.asyncWorker(s.tasks, s.done, s.pool)
}

// asyncWorker 按FIFO顺序执行刷盘任务，刷盘失败只记录日志，不影响后续写入
func (s *Sink) asyncWorker(tasks <-chan *Buffer, done chan<- struct{}, pool *BufferPool) {
	defer close(done)

	for b := range tasks {
		_ = s.flushBuffer(b)
		if s.status.Load() != ClosedStatus {
			pool.Release(b)
		}
	}
}

// Write 写入一条记录。当前缓冲区放不下记录和分隔符时，当前缓冲区交给刷盘协程，
// 记录本身作为独立的刷盘单元进入同一个任务队列，不经过缓冲区。
func (s *Sink) Write(record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Load() == ClosedStatus {
		return ErrSinkClosed
	}

	if s.cur == nil {
		b, err := s.pool.Acquire()
		if err != nil {
			return errors.Wrap(err, "acquire buffer")
		}
		s.cur = b
	}

	need := len(record) + len(s.terminator)
	if s.cur.fits(need) {
		s.cur.write(record, s.terminator)
		return nil
	}

	s.scheduleLocked()
	// 记录需要复制一份，调用方返回后可能复用record
	unit := newStandaloneBuffer(append([]byte(nil), record...))
	s.tasks <- unit
	return nil
}

// scheduleLocked 把当前非空缓冲区交给刷盘协程
func (s *Sink) scheduleLocked() {
	if s.cur == nil || s.cur.Len() == 0 {
		return
	}

	b := s.cur
	s.cur = nil
	b.transfer(bufferFilling, bufferFlushing)
	s.logger.Debug("schedule buffer flush",
		zap.String("sink", s.name),
		zap.Int("bytes", b.Len()),
		zap.Int("free", b.free()))
	s.tasks <- b
}

// Flush 异步刷出当前缓冲区，不等待刷盘完成
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Load() == ClosedStatus {
		return ErrSinkClosed
	}
	s.scheduleLocked()
	return nil
}

// flushBuffer 物理刷盘：写入有效前缀，独立单元再写入分隔符，最后强制同步
func (s *Sink) flushBuffer(b *Buffer) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	n := b.Len()
	_, err := s.out.Write(b.Bytes())
	if err == nil && b.standalone && len(s.terminator) > 0 {
		_, err = s.out.Write(s.terminator)
		n += len(s.terminator)
	}
	if err == nil {
		err = s.syncOut()
	}

	mFlushes.Inc()
	if err != nil {
		mFlushErrors.Inc()
		s.flushErrors.Add(1)
		s.logger.Warn("flush failed",
			zap.String("sink", s.name),
			zap.Int("bytes", n),
			zap.Bool("standalone", b.standalone),
			zap.Error(err))
		return markRetryable(errors.Wrapf(err, "flush %d bytes", n))
	}

	mFlushedBytes.Add(float64(n))
	return nil
}

// syncOut 底层流支持Sync则强制同步到存储，否则普通Flush
func (s *Sink) syncOut() error {
	switch out := s.out.(type) {
	case syncer:
		return out.Sync()
	case flusher:
		return out.Flush()
	default:
		return nil
	}
}

// Drain 同步刷出所有数据：停止调度，等待队列中的刷盘任务完成，
// 再同步刷出当前缓冲区，最后重新初始化刷盘协程和缓冲池，Sink仍然可用。
func (s *Sink) Drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Load() == ClosedStatus {
		return ErrSinkClosed
	}

	err := s.drainLocked()
	s.start()
	return err
}

// Close 排空后关闭底层流，之后的写入返回ErrSinkClosed
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Load() == ClosedStatus {
		return nil
	}

	err := s.drainLocked()
	s.status.Store(ClosedStatus)

	if c, ok := s.out.(io.Closer); ok {
		s.ioMu.Lock()
		cerr := c.Close()
		s.ioMu.Unlock()
		if cerr != nil {
			err = errors.CombineErrors(err, errors.Wrap(cerr, "close stream"))
		}
	}

	s.logger.Debug("sink closed",
		zap.String("sink", s.name),
		zap.Int64("flushErrors", s.flushErrors.Load()))
	return err
}

func (s *Sink) drainLocked() error {
	s.status.Store(DrainingStatus)
	cur := s.cur
	s.cur = nil
	close(s.tasks)

	var err error
	timer := time.NewTimer(s.drainTimeout)
	select {
	case <-s.done:
	case <-timer.C:
		s.logger.Warn("drain timed out, flush worker still busy",
			zap.String("sink", s.name),
			zap.Duration("timeout", s.drainTimeout))
		err = errors.Wrapf(ErrDrainTimeout, "drain %s", s.name)
	}
	timer.Stop()

	// 上一次Drain之后异步刷盘出现过失败，本次Drain不能算成功
	if failed := s.flushErrors.Load() - s.reported; failed > 0 {
		err = errors.CombineErrors(err,
			markRetryable(errors.Wrapf(ErrFlushFailed, "%d async flushes failed", failed)))
	}

	// 超时也要尝试最后一次同步刷盘
	if cur != nil && cur.Len() > 0 {
		cur.transfer(bufferFilling, bufferFlushing)
		if ferr := s.flushBuffer(cur); ferr != nil {
			err = errors.CombineErrors(err, ferr)
		}
	}
	s.pool.Close()
	s.reported = s.flushErrors.Load()

	return err
}

// IsClosed Sink是否已关闭
func (s *Sink) IsClosed() bool {
	return s.status.Load() == ClosedStatus
}

// FlushErrors 累计的刷盘失败次数
func (s *Sink) FlushErrors() int64 {
	return s.flushErrors.Load()
}
