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

import "github.com/cockroachdb/errors"

var (
	ErrSinkClosed      = errors.New("sink is closed")
	ErrDrainTimeout    = errors.New("timed out waiting for flush worker")
	ErrFlushFailed     = errors.New("flush to underlying stream failed")
	ErrPoolClosed      = errors.New("buffer pool is closed")
	ErrWriterClosed    = errors.New("segment writer is closed")
	ErrSegmentMissing  = errors.New("checkpointed segment does not exist")
	ErrRenameFailed    = errors.New("failed to rename segment to its final name")
	ErrInvalidRange    = errors.New("invalid split range")
	ErrCheckpointShort = errors.New("checkpoint data is truncated")
	ErrStringTooLong   = errors.New("string exceeds checkpoint field limit")
)

var (
	// ErrRetryable 标记可以重试的错误，例如刷盘I/O失败
	ErrRetryable = errors.New("retryable")
	// ErrFatal 标记不可重试的错误：分片边界扫描失败、重命名失败、检查点不匹配
	ErrFatal = errors.New("fatal")
)

func markRetryable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrRetryable)
}

func markFatal(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrFatal)
}

// IsRetryable 判断错误是否属于可重试类别
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// IsFatal 判断错误是否属于不可恢复类别
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
