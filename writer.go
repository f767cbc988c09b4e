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
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/TimeWtr/segio/store"
)

// Writer 轮转段写入器，持有当前打开的段和它的Sink，每次写入成功后根据轮转策略
// 判断是否需要关闭当前段并打开下一个段。
// 轮转的条件：
//  1. 累计字节数或记录数达到阈值
//  2. 定时器到期，定时器在每次轮转时重建
//  3. 调用方通过Rotate显式触发
//
// 写入、显式轮转和定时轮转共用同一把锁，轮转排空Sink期间不会有写入进行。
type Writer struct {
	store    store.Store
	opts     options
	tmpl     nameTemplate
	tempTmpl nameTemplate
	host     string
	logger   *zap.Logger

	mu   sync.Mutex
	seg  *Segment
	sink *Sink
	// 已经完成的轮转次数，同时作为下一个段的序号
	rotations int32
	timer     *time.Timer
	// 定时器代数，用于丢弃已经失效的定时回调
	timerGen uint64
	closed   bool
}

// NewWriter 创建轮转写入器，第一个段在第一次写入或Restore时打开
func NewWriter(st store.Store, opts ...Option) (*Writer, error) {
	o := applyOptions(opts)
	switch o.policy {
	case RotateSize, RotateTupleCount:
		if o.threshold <= 0 {
			return nil, errors.Newf("rotation policy %s requires a positive threshold", o.policy)
		}
	case RotateTime:
		if o.interval <= 0 {
			return nil, errors.New("time rotation requires a positive interval")
		}
	}

	host := o.host
	if host == "" {
		host = hostname()
	}

	return &Writer{
		store:    st,
		opts:     o,
		tmpl:     nameTemplate{raw: o.template},
		tempTmpl: nameTemplate{raw: o.tempName},
		host:     host,
		logger:   o.logger,
	}, nil
}

// Write 序列化后的记录写入当前段，写入成功后评估轮转策略
func (w *Writer) Write(record []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if w.seg == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}

	if err := w.sink.Write(record); err != nil {
		return errors.Wrapf(err, "write to %s", w.seg.path)
	}
	w.seg.record(len(record) + len(w.opts.terminator))

	if w.seg.shouldRotate() {
		return w.rotateLocked(w.opts.policy)
	}
	return nil
}

// Rotate 外部信号触发轮转，任何策略下都可以调用，没有打开的段时什么都不做
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if w.seg == nil {
		return nil
	}
	return w.rotateLocked(RotateExternal)
}

// rotateLocked 关闭当前段并立即打开下一个段。
// 重命名失败时临时文件保留在原地，错误返回给调用方，下一次写入会打开新的段。
func (w *Writer) rotateLocked(reason RotationPolicy) error {
	info, err := w.closeSegmentLocked()
	w.rotations++
	mRotations.WithLabelValues(reason.String()).Inc()
	if err != nil {
		return err
	}

	w.logger.Info("segment rotated",
		zap.String("path", info.FinalPath),
		zap.String("reason", reason.String()),
		zap.Int64("size", info.Size),
		zap.Int64("tuples", info.TupleCount),
		zap.Int32("rotations", w.rotations))
	w.opts.onRotate(info)

	return w.openLocked()
}

// openLocked 展开文件名模板并打开新段
func (w *Writer) openLocked() error {
	now := time.Now()
	vars := newTemplateVars(w.host, w.rotations, now, w.opts.timeFormat)
	final := w.tmpl.expand(vars)

	target, finalPath := final, ""
	if w.tempTmpl.raw != "" {
		target = w.tempTmpl.tempPath(final, vars)
		finalPath = final
	}

	var (
		out  store.Writer
		size int64
		err  error
	)
	appended := false
	if w.opts.appendMode {
		var exists bool
		if exists, err = w.store.Exists(target); err != nil {
			return errors.Wrapf(err, "check segment %s", target)
		}
		if exists {
			if size, err = w.store.Size(target); err != nil {
				return errors.Wrapf(err, "size of segment %s", target)
			}
			out, err = w.store.OpenAppend(target)
			appended = true
		}
	}
	if !appended {
		out, err = w.store.Create(target)
	}
	if err != nil {
		return errors.Wrapf(err, "open segment %s", target)
	}

	w.attachLocked(out, &Segment{
		seq:        w.rotations,
		path:       target,
		finalPath:  finalPath,
		size:       size,
		policy:     w.opts.policy,
		threshold:  w.opts.threshold,
		appendMode: appended,
		openedAt:   now,
	})
	return nil
}

func (w *Writer) attachLocked(out store.Writer, seg *Segment) {
	w.seg = seg
	w.sink = newSink(out, seg.path, w.opts)
	w.armTimerLocked()

	w.logger.Debug("segment opened",
		zap.String("path", seg.path),
		zap.String("finalPath", seg.finalPath),
		zap.Int32("seq", seg.seq),
		zap.Bool("append", seg.appendMode),
		zap.Int64("size", seg.size))
}

// closeSegmentLocked 关闭Sink并在需要时把临时文件重命名为最终文件名。
// 刷盘失败是可重试错误，只记录日志；重命名失败是不可恢复错误。
func (w *Writer) closeSegmentLocked() (SegmentInfo, error) {
	w.stopTimerLocked()

	seg := w.seg
	if err := w.sink.Close(); err != nil {
		w.logger.Warn("segment closed with flush errors",
			zap.String("path", seg.path),
			zap.Error(err))
	}
	seg.expired = true
	seg.closed = true
	seg.closedAt = time.Now()
	w.seg, w.sink = nil, nil

	if seg.finalPath != "" && seg.finalPath != seg.path {
		if err := w.finalize(seg); err != nil {
			return seg.info(), err
		}
	}
	return seg.info(), nil
}

// finalize 重命名临时文件，最终文件已存在时先删除
func (w *Writer) finalize(seg *Segment) error {
	exists, err := w.store.Exists(seg.finalPath)
	if err != nil {
		return markFatal(errors.Wrapf(err, "check %s", seg.finalPath))
	}
	if exists {
		ok, err := w.store.Delete(seg.finalPath, false)
		if err != nil || !ok {
			return markFatal(errors.Wrapf(errors.CombineErrors(ErrRenameFailed, err),
				"delete existing %s", seg.finalPath))
		}
	}

	ok, err := w.store.Rename(seg.path, seg.finalPath)
	if err != nil || !ok {
		w.logger.Error("rename failed, temp segment left in place",
			zap.String("path", seg.path),
			zap.String("finalPath", seg.finalPath),
			zap.Error(err))
		return markFatal(errors.Wrapf(errors.CombineErrors(ErrRenameFailed, err),
			"rename %s to %s", seg.path, seg.finalPath))
	}
	return nil
}

func (w *Writer) armTimerLocked() {
	if w.opts.policy != RotateTime || w.opts.interval <= 0 {
		return
	}

	w.timerGen++
	gen := w.timerGen
	w.timer = time.AfterFunc(w.opts.interval, func() {
		w.onTimer(gen)
	})
}

func (w *Writer) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerGen++
}

// onTimer 定时轮转，与写入共用同一把锁
func (w *Writer) onTimer(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.seg == nil || gen != w.timerGen {
		return
	}
	if err := w.rotateLocked(RotateTime); err != nil {
		w.logger.Error("time rotation failed", zap.Error(err))
	}
}

// Checkpoint 排空Sink后记录当前段的状态。排空失败时不返回检查点。
func (w *Writer) Checkpoint() (Checkpoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return Checkpoint{}, ErrWriterClosed
	}

	cp := Checkpoint{Rotations: w.rotations}
	if w.tmpl.dynamic() {
		cp.Template = w.tmpl.raw
	}
	if w.seg == nil {
		return cp, nil
	}

	if err := w.sink.Drain(); err != nil {
		return Checkpoint{}, errors.Wrapf(err, "drain %s before checkpoint", w.seg.path)
	}
	cp.Path = w.seg.path
	cp.Size = w.seg.size
	cp.TupleCount = w.seg.tupleCount

	return cp, nil
}

// Restore 以追加方式重新打开检查点中的段，计数从检查点恢复而不是从存储重新计算，
// 避免把尚未可见的缓冲数据重复计数。段不存在属于不可恢复的配置错误。
func (w *Writer) Restore(cp Checkpoint) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if w.seg != nil {
		if _, err := w.closeSegmentLocked(); err != nil {
			return err
		}
	}

	if cp.Template != "" {
		w.tmpl = nameTemplate{raw: cp.Template}
	}
	w.rotations = cp.Rotations
	if cp.Path == "" {
		return nil
	}

	exists, err := w.store.Exists(cp.Path)
	if err != nil {
		return markFatal(errors.Wrapf(err, "check %s", cp.Path))
	}
	if !exists {
		return markFatal(errors.Wrapf(ErrSegmentMissing, "%s", cp.Path))
	}
	out, err := w.store.OpenAppend(cp.Path)
	if err != nil {
		return markFatal(errors.Wrapf(err, "reopen %s", cp.Path))
	}

	now := time.Now()
	finalPath := ""
	if w.tempTmpl.raw != "" {
		finalPath = w.tmpl.expand(newTemplateVars(w.host, w.rotations, now, w.opts.timeFormat))
	}

	w.attachLocked(out, &Segment{
		seq:        w.rotations,
		path:       cp.Path,
		finalPath:  finalPath,
		size:       cp.Size,
		tupleCount: cp.TupleCount,
		policy:     w.opts.policy,
		threshold:  w.opts.threshold,
		appendMode: true,
		openedAt:   now,
	})
	w.logger.Info("segment restored",
		zap.String("path", cp.Path),
		zap.Int64("size", cp.Size),
		zap.Int64("tuples", cp.TupleCount),
		zap.Int32("rotations", cp.Rotations))
	return nil
}

// Close 关闭当前段，之后的写入返回ErrWriterClosed
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.seg == nil {
		w.stopTimerLocked()
		return nil
	}

	_, err := w.closeSegmentLocked()
	return err
}

// Current 当前段的快照，没有打开的段时返回false
func (w *Writer) Current() (SegmentInfo, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seg == nil {
		return SegmentInfo{}, false
	}
	return w.seg.info(), true
}

// Rotations 已经完成的轮转次数
func (w *Writer) Rotations() int32 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.rotations
}
