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
	"iter"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// SplitLineReader 读取文件中[start,end)范围内的行。
// 只返回首字节落在范围内的行，跨越start的那一行属于上一个分片，构造时会被丢弃。
// LF、CR、CRLF都是行结束符，CRLF算作一个。读完之后不能重新开始。
type SplitLineReader struct {
	r     io.ReadSeeker
	start int64
	end   int64
	// 相对start已经消费的字节数，对齐阶段从start-1开始计数，所以初始为-1
	consumed int64
	buf      *lineBuffer
	// 上一个结束符是恰好位于缓冲区末尾的CR，下一次填充后如果首字节是LF需要一并吞掉
	pendingLF  bool
	eof        bool
	done       bool
	err        error
	dec        *encoding.Decoder
	lineOffset int64
}

// NewSplitLineReader 创建[start,end)范围的行读取器，enc为nil时按原始字节返回。
// start > 0时先对齐到start之后的第一个行首。
func NewSplitLineReader(stream io.ReadSeeker, start, end int64, enc encoding.Encoding) (*SplitLineReader, error) {
	return newSplitLineReader(stream, start, end, enc, DefaultReadBufferSize)
}

func newSplitLineReader(stream io.ReadSeeker, start, end int64, enc encoding.Encoding, bufSize int) (*SplitLineReader, error) {
	if start < 0 || end < start {
		return nil, markFatal(errors.Wrapf(ErrInvalidRange, "[%d,%d)", start, end))
	}

	r := &SplitLineReader{
		r:          stream,
		start:      start,
		end:        end,
		buf:        newLineBuffer(bufSize),
		lineOffset: -1,
	}
	if enc != nil {
		r.dec = enc.NewDecoder()
	}

	if start == 0 {
		if _, err := stream.Seek(0, io.SeekStart); err != nil {
			return nil, markFatal(errors.Wrap(err, "seek split start"))
		}
		return r, nil
	}

	if _, err := stream.Seek(start-1, io.SeekStart); err != nil {
		return nil, markFatal(errors.Wrapf(err, "seek to %d", start-1))
	}
	r.consumed = -1
	if err := r.align(); err != nil {
		return nil, err
	}

	return r, nil
}

// ResumeSplitLineReader 从读检查点恢复，检查点的位置总是行首，不需要重新对齐
func ResumeSplitLineReader(stream io.ReadSeeker, cp ReaderCheckpoint, end int64, enc encoding.Encoding) (*SplitLineReader, error) {
	if cp.Position < 0 || end < cp.Position {
		return nil, markFatal(errors.Wrapf(ErrInvalidRange, "resume [%d,%d)", cp.Position, end))
	}
	if _, err := stream.Seek(cp.Position, io.SeekStart); err != nil {
		return nil, markFatal(errors.Wrapf(err, "seek to %d", cp.Position))
	}

	r := &SplitLineReader{
		r:          stream,
		start:      cp.Position,
		end:        end,
		buf:        newLineBuffer(DefaultReadBufferSize),
		pendingLF:  cp.PendingLF,
		lineOffset: -1,
	}
	if enc != nil {
		r.dec = enc.NewDecoder()
	}

	return r, nil
}

// align 从start-1开始扫描第一个结束符，丢弃它及之前的字节
func (r *SplitLineReader) align() error {
	for {
		w := r.buf.window()
		if i := indexTerminator(w); i >= 0 {
			r.consumeTerminator(w, i)
			return nil
		}

		r.consumed += int64(r.buf.discard())
		if r.start+r.consumed >= r.end || r.eof {
			// 跨越整个分片的行属于上一个分片
			r.done = true
			return nil
		}
		if err := r.fill(); err != nil {
			return err
		}
	}
}

// consumeTerminator 跳过w[:i]和位于w[i]的结束符。CR后紧跟LF时一起消费，
// CR恰好在窗口末尾时把判断推迟到下一次填充。
func (r *SplitLineReader) consumeTerminator(w []byte, i int) {
	adv := i + 1
	if w[i] == CR {
		if i+1 < len(w) {
			if w[i+1] == LF {
				adv++
			}
		} else {
			r.pendingLF = true
		}
	}
	r.buf.advance(adv)
	r.consumed += int64(adv)
}

func (r *SplitLineReader) fill() error {
	_, err := r.buf.fill(r.r)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		r.eof = true
		return nil
	}

	r.err = markFatal(errors.Wrapf(err, "read split at offset %d", r.Position()))
	r.done = true
	return r.err
}

// ReadLine 返回下一行，不包含结束符。ok为false表示分片已读完或出错，出错时Err返回原因。
func (r *SplitLineReader) ReadLine() (string, bool) {
	for !r.done {
		if r.pendingLF {
			if r.buf.empty() {
				if r.eof {
					r.pendingLF = false
					continue
				}
				if r.fill() != nil {
					return "", false
				}
				continue
			}
			if r.buf.window()[0] == LF {
				r.buf.advance(1)
				r.consumed++
			}
			r.pendingLF = false
			continue
		}

		if r.consumed >= r.end-r.start {
			r.done = true
			break
		}

		w := r.buf.window()
		if i := indexTerminator(w); i >= 0 {
			r.lineOffset = r.Position()
			line, ok := r.decode(w[:i])
			r.consumeTerminator(w, i)
			return line, ok
		}

		if r.eof {
			if len(w) == 0 {
				r.done = true
				break
			}
			// 文件末尾没有结束符的最后一行
			r.lineOffset = r.Position()
			line, ok := r.decode(w)
			r.consumed += int64(r.buf.discard())
			return line, ok
		}

		if r.fill() != nil {
			return "", false
		}
	}

	return "", false
}

func (r *SplitLineReader) decode(p []byte) (string, bool) {
	if r.dec == nil {
		mLinesRead.Inc()
		return string(p), true
	}

	out, err := r.dec.Bytes(p)
	if err != nil {
		r.err = markFatal(errors.Wrapf(err, "decode line at offset %d", r.lineOffset))
		r.done = true
		return "", false
	}
	mLinesRead.Inc()
	return string(out), true
}

// Lines 以迭代器的形式返回剩余的行
func (r *SplitLineReader) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, ok := r.ReadLine()
			if !ok || !yield(line) {
				return
			}
		}
	}
}

// Err 返回导致分片读取终止的错误，正常读完时为nil
func (r *SplitLineReader) Err() error {
	return r.err
}

// BytesConsumed 相对start已经消费的字节数，用于分片边界的计算
func (r *SplitLineReader) BytesConsumed() int64 {
	if r.consumed < 0 {
		return 0
	}
	return r.consumed
}

// Position 可恢复的读取位置，等于start + BytesConsumed
func (r *SplitLineReader) Position() int64 {
	return r.start + r.BytesConsumed()
}

// LineOffset 最近一次返回的行的首字节在文件中的偏移量，还没有返回过行时为-1
func (r *SplitLineReader) LineOffset() int64 {
	return r.lineOffset
}

// Checkpoint 返回当前的读取位置以及CR之后是否还需要吞掉LF
func (r *SplitLineReader) Checkpoint() ReaderCheckpoint {
	return ReaderCheckpoint{
		Position:  r.Position(),
		PendingLF: r.pendingLF,
	}
}

// LookupEncoding 根据IANA名称查找字符集，空字符串表示UTF-8原样返回
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return nil, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup encoding %q", name)
	}
	if enc == nil {
		return nil, errors.Newf("unsupported encoding %q", name)
	}
	return enc, nil
}
