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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_Layout(t *testing.T) {
	cp := Checkpoint{
		Path:       "seg",
		TupleCount: 2,
		Size:       258,
		Rotations:  7,
	}
	data, err := cp.MarshalBinary()
	require.NoError(t, err)

	want := []byte{
		0x00, 0x03, 's', 'e', 'g',
		0, 0, 0, 0, 0, 0, 0, 2,
		0, 0, 0, 0, 0, 0, 1, 2,
		0, 0, 0, 7,
	}
	assert.Equal(t, want, data)

	var got Checkpoint
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, cp, got)
}

func TestCheckpoint_OptionalTemplate(t *testing.T) {
	cp := Checkpoint{Path: "h-1.log", TupleCount: 1, Size: 3, Rotations: 1, Template: "{host}-{seq}.log"}
	data, err := cp.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, PathLengthSize+7+TupleCountSize+SizeSize+RotationCounterSize+PathLengthSize+16)

	var got Checkpoint
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, cp, got)

	// 没有模板的检查点解码后模板为空
	got.Template = "stale"
	data, err = Checkpoint{Path: "p"}.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Empty(t, got.Template)
}

func TestCheckpoint_Truncated(t *testing.T) {
	data, err := Checkpoint{Path: "segment-0", Size: 1}.MarshalBinary()
	require.NoError(t, err)

	for _, n := range []int{0, 1, 5, len(data) - 1} {
		var cp Checkpoint
		assert.ErrorIs(t, cp.UnmarshalBinary(data[:n]), ErrCheckpointShort, "length %d", n)
	}
}

func TestCheckpoint_PathTooLong(t *testing.T) {
	_, err := Checkpoint{Path: strings.Repeat("a", MaxStringSize+1)}.MarshalBinary()
	assert.ErrorIs(t, err, ErrStringTooLong)
}

func TestReaderCheckpoint(t *testing.T) {
	data, err := ReaderCheckpoint{Position: 1 << 40, PendingLF: true}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 0, 0, 0, 0, 0, 1}, data)

	var cp ReaderCheckpoint
	require.NoError(t, cp.UnmarshalBinary(data))
	assert.Equal(t, int64(1<<40), cp.Position)
	assert.True(t, cp.PendingLF)

	assert.ErrorIs(t, cp.UnmarshalBinary(data[:8]), ErrCheckpointShort)
}
