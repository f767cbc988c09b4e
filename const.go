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

import "time"

const (
	// OpenStatus Sink正常接收写入
	OpenStatus = iota + 1
	// DrainingStatus Sink正在排空，不再调度新的异步刷盘任务
	DrainingStatus
	// ClosedStatus Sink已关闭，底层流已经释放
	ClosedStatus
)

const (
	// DefaultBufferSize 单个缓冲区的默认容量(1MB)
	DefaultBufferSize = 1024 * 1024
	// DefaultPoolSize 缓冲池中缓冲区的数量
	DefaultPoolSize = 3
	// DefaultDrainTimeout Drain/Close等待刷盘任务完成的最长时间
	DefaultDrainTimeout = 30 * time.Second
	// DefaultReadBufferSize SplitLineReader初始的读缓冲区大小
	DefaultReadBufferSize = 8 * 1024
	// DefaultTimeFormat 文件名模板中{time}的默认格式
	DefaultTimeFormat = "20060102T150405"
)

const (
	// LF 换行
	LF byte = '\n'
	// CR 回车
	CR byte = '\r'
)

// DefaultTerminator 默认的记录分隔符，二进制数据使用空分隔符
var DefaultTerminator = []byte{LF}

const (
	// PathLengthSize 检查点中字符串长度前缀占用的空间，2个字节
	PathLengthSize = 2
	// TupleCountSize 检查点中记录数占用的空间，8个字节
	TupleCountSize = 8
	// SizeSize 检查点中段大小占用的空间，8个字节
	SizeSize = 8
	// RotationCounterSize 检查点中轮转计数占用的空间，4个字节
	RotationCounterSize = 4
	// MaxStringSize 检查点中字符串的最大长度
	MaxStringSize = 1<<16 - 1

	// ReaderCheckpointSize 读检查点的长度：8字节偏移量 + 1字节待吞LF标识
	ReaderCheckpointSize = 8 + 1
)
