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
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Checkpoint 写检查点，在Drain成功之后获取，足以在追加模式下恢复写入。
// 编码布局(大端序)：
//
//	+-----------------+------------+-------+-----------+--------------------+
//	| path            | tupleCount | size  | rotations | template(可选)      |
//	| 2字节长度+内容    | int64      | int64 | int32     | 2字节长度+内容        |
//	+-----------------+------------+-------+-----------+--------------------+
//
// template只在动态文件名模式下存在。
type Checkpoint struct {
	Path       string
	TupleCount int64
	Size       int64
	Rotations  int32
	// Template 原始文件名模板，非动态模式为空
	Template string
}

// MarshalBinary 按固定顺序编码检查点
func (c Checkpoint) MarshalBinary() ([]byte, error) {
	n := PathLengthSize + len(c.Path) + TupleCountSize + SizeSize + RotationCounterSize
	if c.Template != "" {
		n += PathLengthSize + len(c.Template)
	}

	buf := make([]byte, 0, n)
	buf, err := appendString(buf, c.Path)
	if err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(c.TupleCount))
	buf = binary.BigEndian.AppendUint64(buf, uint64(c.Size))
	buf = binary.BigEndian.AppendUint32(buf, uint32(c.Rotations))
	if c.Template != "" {
		if buf, err = appendString(buf, c.Template); err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// UnmarshalBinary 解码检查点，剩余字节存在时解析为文件名模板
func (c *Checkpoint) UnmarshalBinary(data []byte) error {
	path, rest, err := readString(data)
	if err != nil {
		return err
	}
	if len(rest) < TupleCountSize+SizeSize+RotationCounterSize {
		return errors.Wrap(ErrCheckpointShort, "counters")
	}

	c.Path = path
	c.TupleCount = int64(binary.BigEndian.Uint64(rest[0:8]))
	c.Size = int64(binary.BigEndian.Uint64(rest[8:16]))
	c.Rotations = int32(binary.BigEndian.Uint32(rest[16:20]))
	rest = rest[20:]

	c.Template = ""
	if len(rest) > 0 {
		if c.Template, _, err = readString(rest); err != nil {
			return err
		}
	}

	return nil
}

func appendString(buf []byte, s string) ([]byte, error) {
	if len(s) > MaxStringSize {
		return nil, errors.Wrapf(ErrStringTooLong, "%d bytes", len(s))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < PathLengthSize {
		return "", nil, errors.Wrap(ErrCheckpointShort, "string length")
	}
	n := int(binary.BigEndian.Uint16(data))
	data = data[PathLengthSize:]
	if len(data) < n {
		return "", nil, errors.Wrapf(ErrCheckpointShort, "string of %d bytes", n)
	}
	return string(data[:n]), data[n:], nil
}

// ReaderCheckpoint 读检查点：下一行的起始位置，以及CR之后是否还需要吞掉LF
type ReaderCheckpoint struct {
	Position  int64
	PendingLF bool
}

// MarshalBinary 编码为8字节位置+1字节标识
func (c ReaderCheckpoint) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ReaderCheckpointSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(c.Position))
	if c.PendingLF {
		buf[8] = 1
	}
	return buf, nil
}

func (c *ReaderCheckpoint) UnmarshalBinary(data []byte) error {
	if len(data) < ReaderCheckpointSize {
		return errors.Wrap(ErrCheckpointShort, "reader checkpoint")
	}
	c.Position = int64(binary.BigEndian.Uint64(data[0:8]))
	c.PendingLF = data[8] != 0
	return nil
}
