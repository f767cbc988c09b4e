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
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// RotationPolicy 段轮转策略
type RotationPolicy int

const (
	// RotateNever 不自动轮转
	RotateNever RotationPolicy = iota
	// RotateSize 累计字节数达到阈值时轮转
	RotateSize
	// RotateTupleCount 累计记录数达到阈值时轮转
	RotateTupleCount
	// RotateTime 段打开后经过固定时间轮转
	RotateTime
	// RotateExternal 由调用方显式触发轮转
	RotateExternal
)

func (p RotationPolicy) String() string {
	switch p {
	case RotateNever:
		return "never"
	case RotateSize:
		return "size"
	case RotateTupleCount:
		return "count"
	case RotateTime:
		return "time"
	case RotateExternal:
		return "external"
	default:
		return "unknown"
	}
}

// ParseRotationPolicy 解析配置中的策略名称
func ParseRotationPolicy(s string) (RotationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never", "none":
		return RotateNever, nil
	case "size", "bytes":
		return RotateSize, nil
	case "count", "tuplecount", "tuples":
		return RotateTupleCount, nil
	case "time", "interval":
		return RotateTime, nil
	case "external", "punct":
		return RotateExternal, nil
	default:
		return RotateNever, errors.Newf("unknown rotation policy %q", s)
	}
}

// Segment 输出段的定义，只在Writer的写锁内修改
type Segment struct {
	// 段序号，等于打开时的轮转计数
	seq int32
	// 当前写入的路径，配置临时文件名时为临时路径
	path string
	// 关闭后需要重命名到的最终路径，为空表示不需要重命名
	finalPath string
	// 当前已写入的字节数，包括分隔符
	size int64
	// 当前已写入的记录数
	tupleCount int64
	policy     RotationPolicy
	threshold  int64
	// 是否以追加方式打开
	appendMode bool
	// 是否已经触发轮转
	expired bool
	// 是否已经关闭
	closed   bool
	openedAt time.Time
	closedAt time.Time
}

// record 记录一次成功的写入
func (s *Segment) record(n int) {
	s.size += int64(n)
	s.tupleCount++
}

// shouldRotate 判断写入之后是否达到轮转条件，时间和外部策略不在这里判断
func (s *Segment) shouldRotate() bool {
	switch s.policy {
	case RotateSize:
		return s.threshold > 0 && s.size >= s.threshold
	case RotateTupleCount:
		return s.threshold > 0 && s.tupleCount >= s.threshold
	default:
		return false
	}
}

// target 段关闭后最终可见的路径
func (s *Segment) target() string {
	if s.finalPath != "" {
		return s.finalPath
	}
	return s.path
}

func (s *Segment) info() SegmentInfo {
	return SegmentInfo{
		Seq:        s.seq,
		Path:       s.path,
		FinalPath:  s.target(),
		Size:       s.size,
		TupleCount: s.tupleCount,
		Expired:    s.expired,
		Closed:     s.closed,
		OpenedAt:   s.openedAt,
		ClosedAt:   s.closedAt,
	}
}

// SegmentInfo 段的只读快照
type SegmentInfo struct {
	Seq        int32
	Path       string
	FinalPath  string
	Size       int64
	TupleCount int64
	Expired    bool
	Closed     bool
	OpenedAt   time.Time
	ClosedAt   time.Time
}
