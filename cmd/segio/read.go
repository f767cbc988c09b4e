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
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"github.com/TimeWtr/segio"
	"github.com/TimeWtr/segio/store"
)

var cmdRead = &cobra.Command{
	Use:   "read <path>",
	Short: "Read a file as parallel splits and print its lines in file order",
	Args:  cobra.ExactArgs(1),
	Run:   runRead,
}

var flagRead = struct {
	Splits   int
	Encoding string
	Offsets  bool
}{}

func init() {
	cmdRead.Flags().IntVarP(&flagRead.Splits, "splits", "k", 0, "Number of splits, overrides the config file")
	cmdRead.Flags().StringVar(&flagRead.Encoding, "encoding", "", "Charset of the file, overrides the config file")
	cmdRead.Flags().BoolVar(&flagRead.Offsets, "offsets", false, "Prefix each line with its byte offset")
}

func runRead(cmd *cobra.Command, args []string) {
	c := loadConfig()
	if flagRead.Splits > 0 {
		c.Input.Splits = flagRead.Splits
	}
	if flagRead.Encoding != "" {
		c.Input.Encoding = flagRead.Encoding
	}
	logger := newLogger(c)
	defer func() { _ = logger.Sync() }()
	serveMetrics(logger)

	st, err := store.NewLocalStore(c.Root)
	check(err)
	enc, err := segio.LookupEncoding(c.Input.Encoding)
	check(err)

	out := bufio.NewWriter(os.Stdout)
	defer func() { check(out.Flush()) }()

	err = readSplits(cmd.Context(), st, args[0], c.Input.Splits, enc, logger, func(l segio.Line) error {
		if flagRead.Offsets {
			if _, err := out.WriteString(strconv.FormatInt(l.Offset, 10) + "\t"); err != nil {
				return err
			}
		}
		if _, err := out.WriteString(l.Text); err != nil {
			return err
		}
		return out.WriteByte('\n')
	})
	check(err)
}

// readSplits 把文件平均切分为k个分片，每个分片由一个协程读取，
// 读出的行按偏移量归并后交给fn。
func readSplits(ctx context.Context, st store.Store, path string, k int, enc encoding.Encoding,
	logger *zap.Logger, fn func(segio.Line) error) error {
	size, err := st.Size(path)
	if err != nil {
		return err
	}
	if k <= 0 {
		k = 1
	}
	if int64(k) > size && size > 0 {
		k = int(size)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	sources := make([]segio.LineSource, k)
	for i := 0; i < k; i++ {
		start, end := size*int64(i)/int64(k), size*int64(i+1)/int64(k)
		lines := make(chan segio.Line, 256)
		sources[i] = segio.NewChanSource(lines, nil)

		g.Go(func() error {
			defer close(lines)

			f, err := st.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			r, err := segio.NewSplitLineReader(f, start, end, enc)
			if err != nil {
				return errors.Wrapf(err, "split [%d,%d)", start, end)
			}
			src := segio.SourceOf(r)
			for {
				l, ok := src.Next()
				if !ok {
					break
				}
				select {
				case lines <- l:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			logger.Debug("split done",
				zap.Int64("start", start),
				zap.Int64("end", end),
				zap.Int64("consumed", r.BytesConsumed()))
			return src.Err()
		})
	}

	err = segio.MergeSplits(gctx, sources, fn)
	// 归并提前结束时让读取协程退出
	cancel()
	werr := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if werr != nil {
		return werr
	}
	return err
}
