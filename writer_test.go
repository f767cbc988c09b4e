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
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimeWtr/segio/store"
)

func writeRecords(t *testing.T, w *Writer, records ...string) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, w.Write([]byte(r)))
	}
}

func TestWriter_NoRotation(t *testing.T) {
	st := store.NewMemStore()
	w, err := NewWriter(st, WithBufferSize(32))
	require.NoError(t, err)

	var records []string
	for i := 0; i < 100; i++ {
		records = append(records, fmt.Sprintf("record-%d", i))
	}
	writeRecords(t, w, records...)

	info, ok := w.Current()
	require.True(t, ok)
	assert.Equal(t, int64(100), info.TupleCount)

	require.NoError(t, w.Close())
	assert.Equal(t, []string{"segment-0"}, st.Paths())
	assert.Equal(t, strings.Join(records, "\n")+"\n", string(st.Bytes("segment-0")))
	assert.Equal(t, int32(0), w.Rotations())
}

func TestWriter_FirstSegmentOpenedLazily(t *testing.T) {
	st := store.NewMemStore()
	w, err := NewWriter(st)
	require.NoError(t, err)

	_, ok := w.Current()
	assert.False(t, ok)
	require.NoError(t, w.Close())
	assert.Empty(t, st.Paths())
}

func TestWriter_SizeRotationAtThreshold(t *testing.T) {
	st := store.NewMemStore()
	w, err := NewWriter(st, WithRotation(RotateSize, 10))
	require.NoError(t, err)

	// 两条记录加分隔符恰好10字节
	writeRecords(t, w, "abcd", "efgh")
	assert.Equal(t, int32(1), w.Rotations())
	assert.Equal(t, "abcd\nefgh\n", string(st.Bytes("segment-0")))

	// 轮转后立即打开下一个段
	info, ok := w.Current()
	require.True(t, ok)
	assert.Equal(t, "segment-1", info.Path)
	assert.Equal(t, int64(0), info.Size)

	writeRecords(t, w, "ijk")
	require.NoError(t, w.Close())
	assert.Equal(t, int32(1), w.Rotations())
	assert.Equal(t, []string{"segment-0", "segment-1"}, st.Paths())
	assert.Equal(t, "ijk\n", string(st.Bytes("segment-1")))
}

func TestWriter_TupleCountRotation(t *testing.T) {
	st := store.NewMemStore()
	w, err := NewWriter(st, WithRotation(RotateTupleCount, 3), WithNameTemplate("out/part-{seq}.txt"))
	require.NoError(t, err)

	writeRecords(t, w, "1", "2", "3", "4", "5", "6", "7")
	require.NoError(t, w.Close())

	assert.Equal(t, int32(2), w.Rotations())
	assert.Equal(t, []string{"out/part-0.txt", "out/part-1.txt", "out/part-2.txt"}, st.Paths())
	assert.Equal(t, "1\n2\n3\n", string(st.Bytes("out/part-0.txt")))
	assert.Equal(t, "4\n5\n6\n", string(st.Bytes("out/part-1.txt")))
	assert.Equal(t, "7\n", string(st.Bytes("out/part-2.txt")))
}

func TestWriter_ExternalRotation(t *testing.T) {
	st := store.NewMemStore()
	w, err := NewWriter(st)
	require.NoError(t, err)

	// 没有打开的段时什么都不做
	require.NoError(t, w.Rotate())
	assert.Equal(t, int32(0), w.Rotations())

	writeRecords(t, w, "a")
	require.NoError(t, w.Rotate())
	writeRecords(t, w, "b")
	require.NoError(t, w.Close())

	assert.Equal(t, int32(1), w.Rotations())
	assert.Equal(t, "a\n", string(st.Bytes("segment-0")))
	assert.Equal(t, "b\n", string(st.Bytes("segment-1")))
	assert.ErrorIs(t, w.Rotate(), ErrWriterClosed)
}

func TestWriter_TimeRotation(t *testing.T) {
	st := store.NewMemStore()
	w, err := NewWriter(st, WithRotationInterval(30*time.Millisecond))
	require.NoError(t, err)

	writeRecords(t, w, "tick")
	require.Eventually(t, func() bool {
		return w.Rotations() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Close())
	assert.Equal(t, "tick\n", string(st.Bytes("segment-0")))

	// 关闭之后定时器不再触发轮转
	rotations := w.Rotations()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, rotations, w.Rotations())
}

func TestWriter_InvalidRotation(t *testing.T) {
	_, err := NewWriter(store.NewMemStore(), WithRotation(RotateSize, 0))
	assert.Error(t, err)

	_, err = NewWriter(store.NewMemStore(), WithRotation(RotateTupleCount, -1))
	assert.Error(t, err)

	_, err = NewWriter(store.NewMemStore(), WithRotationInterval(0))
	assert.Error(t, err)
}

func TestWriter_TempNameRenamedOnRotation(t *testing.T) {
	st := store.NewMemStore()
	// 最终文件名已经存在，重命名之前需要先删除
	old, err := st.Create("segment-0")
	require.NoError(t, err)
	_, err = old.Write([]byte("stale\n"))
	require.NoError(t, err)

	w, err := NewWriter(st, WithTempName("{name}.inprogress"), WithRotation(RotateTupleCount, 2))
	require.NoError(t, err)

	writeRecords(t, w, "a")
	info, ok := w.Current()
	require.True(t, ok)
	assert.Equal(t, "segment-0.inprogress", info.Path)
	assert.Equal(t, "segment-0", info.FinalPath)

	writeRecords(t, w, "b")
	assert.Equal(t, "a\nb\n", string(st.Bytes("segment-0")))
	assert.Equal(t, []string{"segment-0", "segment-1.inprogress"}, st.Paths())

	require.NoError(t, w.Close())
	assert.Equal(t, []string{"segment-0", "segment-1"}, st.Paths())
}

// renameFailStore 重命名总是失败的存储
type renameFailStore struct {
	*store.MemStore
}

func (s renameFailStore) Rename(string, string) (bool, error) {
	return false, nil
}

func TestWriter_RenameFailureKeepsTemp(t *testing.T) {
	st := renameFailStore{MemStore: store.NewMemStore()}
	w, err := NewWriter(st, WithTempName("{name}.tmp"), WithRotation(RotateTupleCount, 1))
	require.NoError(t, err)

	err = w.Write([]byte("a"))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrRenameFailed)

	// 临时文件保留在原地，数据不丢失
	assert.Equal(t, "a\n", string(st.Bytes("segment-0.tmp")))
	assert.Equal(t, int32(1), w.Rotations())
	_, ok := w.Current()
	assert.False(t, ok)

	// 下一次写入打开新的段
	_ = w.Write([]byte("b"))
	assert.Equal(t, "b\n", string(st.Bytes("segment-1.tmp")))
}

func TestWriter_CheckpointRestore(t *testing.T) {
	st := store.NewMemStore()
	w1, err := NewWriter(st, WithBufferSize(64))
	require.NoError(t, err)

	writeRecords(t, w1, "one", "two", "three")
	cp, err := w1.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, "segment-0", cp.Path)
	assert.Equal(t, int64(3), cp.TupleCount)
	assert.Equal(t, int64(len("one\ntwo\nthree\n")), cp.Size)
	// Checkpoint之前已经排空，数据对存储可见
	assert.Equal(t, "one\ntwo\nthree\n", string(st.Bytes("segment-0")))

	raw, err := cp.MarshalBinary()
	require.NoError(t, err)

	// 模拟进程退出：w1不再使用
	var restored Checkpoint
	require.NoError(t, restored.UnmarshalBinary(raw))

	w2, err := NewWriter(st, WithBufferSize(64))
	require.NoError(t, err)
	require.NoError(t, w2.Restore(restored))

	info, ok := w2.Current()
	require.True(t, ok)
	assert.Equal(t, cp.Size, info.Size)
	assert.Equal(t, cp.TupleCount, info.TupleCount)

	writeRecords(t, w2, "four", "five")
	require.NoError(t, w2.Close())

	size, err := st.Size("segment-0")
	require.NoError(t, err)
	assert.Equal(t, cp.Size+int64(len("four\nfive\n")), size)
	assert.Equal(t, "one\ntwo\nthree\nfour\nfive\n", string(st.Bytes("segment-0")))
}

func TestWriter_RestoreContinuesRotation(t *testing.T) {
	st := store.NewMemStore()
	opts := []Option{
		WithRotation(RotateTupleCount, 2),
		WithNameTemplate("{host}-{seq}.log"),
		WithHost("node1"),
	}
	w1, err := NewWriter(st, opts...)
	require.NoError(t, err)

	writeRecords(t, w1, "a", "b", "c")
	cp, err := w1.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, "node1-1.log", cp.Path)
	assert.Equal(t, int32(1), cp.Rotations)
	assert.Equal(t, "{host}-{seq}.log", cp.Template)

	// 新的写入器使用检查点中的模板
	w2, err := NewWriter(st, WithRotation(RotateTupleCount, 2), WithHost("node1"))
	require.NoError(t, err)
	require.NoError(t, w2.Restore(cp))

	writeRecords(t, w2, "d", "e")
	require.NoError(t, w2.Close())

	assert.Equal(t, int32(2), w2.Rotations())
	assert.Equal(t, "c\nd\n", string(st.Bytes("node1-1.log")))
	assert.Equal(t, "e\n", string(st.Bytes("node1-2.log")))
}

func TestWriter_RestoreTempSegment(t *testing.T) {
	st := store.NewMemStore()
	w1, err := NewWriter(st, WithTempName("{name}.tmp"))
	require.NoError(t, err)

	writeRecords(t, w1, "a")
	cp, err := w1.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, "segment-0.tmp", cp.Path)

	w2, err := NewWriter(st, WithTempName("{name}.tmp"))
	require.NoError(t, err)
	require.NoError(t, w2.Restore(cp))
	writeRecords(t, w2, "b")
	require.NoError(t, w2.Close())

	assert.Equal(t, []string{"segment-0"}, st.Paths())
	assert.Equal(t, "a\nb\n", string(st.Bytes("segment-0")))
}

func TestWriter_RestoreMissingSegment(t *testing.T) {
	w, err := NewWriter(store.NewMemStore())
	require.NoError(t, err)

	err = w.Restore(Checkpoint{Path: "segment-9", Size: 10, TupleCount: 1})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrSegmentMissing)
}

func TestWriter_AppendMode(t *testing.T) {
	st := store.NewMemStore()
	old, err := st.Create("segment-0")
	require.NoError(t, err)
	_, err = old.Write([]byte("old\n"))
	require.NoError(t, err)

	w, err := NewWriter(st, WithAppend(true))
	require.NoError(t, err)
	writeRecords(t, w, "new")

	info, ok := w.Current()
	require.True(t, ok)
	assert.Equal(t, int64(8), info.Size)
	require.NoError(t, w.Close())

	assert.Equal(t, "old\nnew\n", string(st.Bytes("segment-0")))
}

func TestWriter_OnRotate(t *testing.T) {
	st := store.NewMemStore()
	var (
		mu    sync.Mutex
		infos []SegmentInfo
	)
	w, err := NewWriter(st, WithRotation(RotateTupleCount, 2), WithOnRotate(func(info SegmentInfo) {
		mu.Lock()
		defer mu.Unlock()
		infos = append(infos, info)
	}))
	require.NoError(t, err)

	writeRecords(t, w, "a", "b", "c", "d")
	require.NoError(t, w.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, infos, 2)
	assert.Equal(t, "segment-0", infos[0].FinalPath)
	assert.Equal(t, int64(2), infos[0].TupleCount)
	assert.True(t, infos[0].Closed)
	assert.True(t, infos[0].Expired)
	assert.Equal(t, int32(1), infos[1].Seq)
}

func TestWriter_Closed(t *testing.T) {
	w, err := NewWriter(store.NewMemStore())
	require.NoError(t, err)
	writeRecords(t, w, "a")
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Write([]byte("b")), ErrWriterClosed)
	_, err = w.Checkpoint()
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.ErrorIs(t, w.Restore(Checkpoint{}), ErrWriterClosed)
}

func TestWriter_LocalStore(t *testing.T) {
	st, err := store.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	w, err := NewWriter(st, WithRotation(RotateSize, 64), WithNameTemplate("logs/{seq}.log"))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, w.Write([]byte(fmt.Sprintf("line %02d", i))))
	}
	require.NoError(t, w.Close())

	// 每条记录8字节，64字节轮转一次
	assert.Equal(t, int32(2), w.Rotations())
	size, err := st.Size("logs/0.log")
	require.NoError(t, err)
	assert.Equal(t, int64(64), size)

	r, err := st.Open("logs/2.log")
	require.NoError(t, err)
	defer r.Close()
	lr, err := NewSplitLineReader(r, 0, 32, nil)
	require.NoError(t, err)

	var lines []string
	for line := range lr.Lines() {
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"line 16", "line 17", "line 18", "line 19"}, lines)
}
