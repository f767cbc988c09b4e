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

// Package store 定义段读写依赖的字节存储能力，以及本地文件系统和内存两种实现。
// 连接建立、认证和重试由调用方负责，这里只要求一个已经可用的句柄。
package store

import (
	"io"

	"github.com/cockroachdb/errors"
)

var ErrNotFound = errors.New("object not found")

// Reader 可定位的只读流
type Reader interface {
	io.ReadSeekCloser
}

// Writer 输出流。实现Sync时每次物理写入后会强制同步到存储，否则尝试Flush。
type Writer interface {
	io.WriteCloser
}

// Store 远端字节存储需要提供的能力，路径统一使用/分隔
type Store interface {
	// Open 打开对象用于读取
	Open(path string) (Reader, error)
	// OpenAppend 以追加方式打开已存在的对象
	OpenAppend(path string) (Writer, error)
	// Create 创建对象，已存在时截断
	Create(path string) (Writer, error)
	// Exists 判断对象是否存在
	Exists(path string) (bool, error)
	// Size 对象当前的字节数
	Size(path string) (int64, error)
	// Rename 重命名，源对象不存在时返回false
	Rename(src, dst string) (bool, error)
	// Delete 删除对象，recursive为true时删除整个目录
	Delete(path string, recursive bool) (bool, error)
}
