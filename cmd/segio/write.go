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

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TimeWtr/segio"
	"github.com/TimeWtr/segio/store"
)

var cmdWrite = &cobra.Command{
	Use:   "write",
	Short: "Write lines from stdin into rotating segments",
	Long: "Write lines from stdin into rotating segments. SIGHUP rotates the current segment. " +
		"With --checkpoint the writer resumes from the checkpoint file and leaves the last segment open on exit.",
	Args: cobra.NoArgs,
	Run:  runWrite,
}

// 单行的最大长度
const maxLineSize = 64 << 20

var flagWrite = struct {
	Checkpoint string
}{}

func init() {
	cmdWrite.Flags().StringVar(&flagWrite.Checkpoint, "checkpoint", "", "Checkpoint file, relative to the store root")
}

func runWrite(cmd *cobra.Command, _ []string) {
	c := loadConfig()
	logger := newLogger(c)
	defer func() { _ = logger.Sync() }()
	serveMetrics(logger)

	st, err := store.NewLocalStore(c.Root)
	check(err)

	var rotated atomic.Int32
	opts, err := c.WriterOptions(logger)
	check(err)
	opts = append(opts, segio.WithOnRotate(func(info segio.SegmentInfo) {
		rotated.Add(1)
		fmt.Fprintf(os.Stderr, "%s: %d records, %s\n",
			info.FinalPath, info.TupleCount, humanize.IBytes(uint64(info.Size)))
	}))

	w, err := segio.NewWriter(st, opts...)
	check(err)

	if flagWrite.Checkpoint != "" {
		restoreCheckpoint(st, w, flagWrite.Checkpoint)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go rotateOnHangup(ctx, w, logger)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	var records, written uint64
loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			check(w.Write(line))
			records++
			written += uint64(len(line)) + uint64(len(c.Output.Terminator))
		case <-ctx.Done():
			break loop
		}
	}

	select {
	case err := <-scanErr:
		check(err)
	default:
	}

	if flagWrite.Checkpoint != "" {
		saveCheckpoint(st, w, flagWrite.Checkpoint)
	} else {
		check(w.Close())
	}

	fmt.Fprintf(os.Stderr, "wrote %s records (%s) across %d rotations\n",
		humanize.Comma(int64(records)), humanize.IBytes(written), rotated.Load())
}

// rotateOnHangup 收到SIGHUP时轮转当前段
func rotateOnHangup(ctx context.Context, w *segio.Writer, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := w.Rotate(); err != nil {
				logger.Error("rotate on SIGHUP", zap.Error(err))
			}
		}
	}
}

func restoreCheckpoint(st store.Store, w *segio.Writer, path string) {
	ok, err := st.Exists(path)
	check(err)
	if !ok {
		return
	}

	r, err := st.Open(path)
	check(err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	check(err)

	var cp segio.Checkpoint
	check(cp.UnmarshalBinary(data))
	check(w.Restore(cp))
}

// saveCheckpoint 排空后保存检查点，当前段保持打开状态，下一次运行从检查点继续追加
func saveCheckpoint(st store.Store, w *segio.Writer, path string) {
	cp, err := w.Checkpoint()
	check(err)
	data, err := cp.MarshalBinary()
	check(err)

	out, err := st.Create(path)
	check(err)
	_, err = out.Write(data)
	check(err)
	check(out.Close())
}
