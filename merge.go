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
	"context"
	"math"

	gl "github.com/bboreham/go-loser"
	"github.com/cockroachdb/errors"
)

// Line 分片读取到的一行及其首字节在文件中的偏移量
type Line struct {
	Offset int64
	Text   string
}

// LineSource 按偏移量递增产出行的来源
type LineSource interface {
	// Next 返回下一行，ok为false表示读完
	Next() (Line, bool)
	// Err 读完之后返回导致结束的错误
	Err() error
}

// splitSource 把SplitLineReader包装成LineSource
type splitSource struct {
	r *SplitLineReader
}

// SourceOf 按顺序读取一个分片
func SourceOf(r *SplitLineReader) LineSource {
	return &splitSource{r: r}
}

func (s *splitSource) Next() (Line, bool) {
	text, ok := s.r.ReadLine()
	if !ok {
		return Line{}, false
	}
	return Line{Offset: s.r.LineOffset(), Text: text}, true
}

func (s *splitSource) Err() error {
	return s.r.Err()
}

// ChanSource 从通道中读取另一个协程预先读出的行，通道关闭表示读完
type ChanSource struct {
	C   <-chan Line
	err func() error
}

// NewChanSource errFn在通道关闭之后调用，返回生产者的错误
func NewChanSource(c <-chan Line, errFn func() error) *ChanSource {
	return &ChanSource{C: c, err: errFn}
}

func (s *ChanSource) Next() (Line, bool) {
	l, ok := <-s.C
	return l, ok
}

func (s *ChanSource) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err()
}

// sequence 实现loser树需要的Sequence接口，值为行的偏移量
type sequence struct {
	src LineSource
	cur Line
}

func (it *sequence) At() int64 {
	return it.cur.Offset
}

func (it *sequence) Next() bool {
	l, ok := it.src.Next()
	if !ok {
		it.cur = Line{Offset: math.MaxInt64}
		return false
	}
	it.cur = l
	return true
}

// MergeSplits 用败者树按偏移量多路归并多个分片的输出，得到与整个文件一致的行顺序。
// 各分片互不重叠时，结果就是原文件的行序列。
func MergeSplits(ctx context.Context, sources []LineSource, fn func(Line) error) error {
	seqs := make([]*sequence, len(sources))
	for i, src := range sources {
		seqs[i] = &sequence{src: src}
	}

	tree := gl.New[int64](seqs, math.MaxInt64)
	defer tree.Close()

	for tree.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(tree.Winner().cur); err != nil {
			return err
		}
	}

	var errs error
	for i, src := range sources {
		if err := src.Err(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "split %d", i))
		}
	}
	return errs
}
