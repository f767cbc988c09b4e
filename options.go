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
	"time"

	"go.uber.org/zap"
)

// Option 配置Sink和Writer
type Option func(*options)

type options struct {
	bufferSize   int
	poolSize     int
	terminator   []byte
	drainTimeout time.Duration
	logger       *zap.Logger

	policy     RotationPolicy
	threshold  int64
	interval   time.Duration
	template   string
	tempName   string
	timeFormat string
	appendMode bool
	host       string
	onRotate   func(SegmentInfo)
}

func defaultOptions() options {
	return options{
		bufferSize:   DefaultBufferSize,
		poolSize:     DefaultPoolSize,
		terminator:   DefaultTerminator,
		drainTimeout: DefaultDrainTimeout,
		logger:       zap.NewNop(),
		policy:       RotateNever,
		template:     "segment-{seq}",
		timeFormat:   DefaultTimeFormat,
		onRotate:     func(SegmentInfo) {},
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithBufferSize 设置单个缓冲区的容量
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithPoolSize 设置缓冲池中缓冲区的数量，决定生产者最多领先刷盘协程多少个缓冲区
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// WithTerminator 设置每条记录后追加的分隔符，nil或空切片表示二进制数据不追加分隔符
func WithTerminator(term []byte) Option {
	return func(o *options) {
		o.terminator = append([]byte(nil), term...)
	}
}

// WithDrainTimeout 设置Drain/Close等待刷盘协程的最长时间
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.drainTimeout = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRotation 设置轮转策略及阈值，RotateSize的阈值单位为字节，RotateTupleCount为记录数
func WithRotation(policy RotationPolicy, threshold int64) Option {
	return func(o *options) {
		o.policy = policy
		o.threshold = threshold
	}
}

// WithRotationInterval 设置RotateTime策略的时间间隔
func WithRotationInterval(d time.Duration) Option {
	return func(o *options) {
		o.policy = RotateTime
		o.interval = d
	}
}

// WithNameTemplate 设置段文件名模板，支持{host} {pid} {seq} {time} {uuid}
func WithNameTemplate(tmpl string) Option {
	return func(o *options) {
		if tmpl != "" {
			o.template = tmpl
		}
	}
}

// WithTempName 设置临时文件名模板，段关闭后重命名为最终文件名。
// 除了文件名模板的变量外还支持{name}，表示最终文件名的base部分。
func WithTempName(tmpl string) Option {
	return func(o *options) {
		o.tempName = tmpl
	}
}

// WithTimeFormat 设置{time}变量的时间格式
func WithTimeFormat(layout string) Option {
	return func(o *options) {
		if layout != "" {
			o.timeFormat = layout
		}
	}
}

// WithAppend 打开段时如果文件已存在则追加写入
func WithAppend(enabled bool) Option {
	return func(o *options) {
		o.appendMode = enabled
	}
}

// WithHost 覆盖{host}变量，默认使用主机名
func WithHost(host string) Option {
	return func(o *options) {
		o.host = host
	}
}

// WithOnRotate 注册段轮转后的回调，回调在写锁内执行，不能阻塞
func WithOnRotate(fn func(SegmentInfo)) Option {
	return func(o *options) {
		if fn != nil {
			o.onRotate = fn
		}
	}
}
