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

package store

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/edsrzf/mmap-go"
)

const (
	fileModePerm = 0644
	dirModePerm  = 0755
)

var _ Store = (*LocalStore)(nil)

// LocalStore 本地文件系统实现，所有路径都相对于root
type LocalStore struct {
	root string
}

// NewLocalStore 创建以root为根目录的存储，目录不存在时自动创建
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, dirModePerm); err != nil {
		return nil, errors.Wrapf(err, "create store root %s", root)
	}
	return &LocalStore{root: root}, nil
}

// Root 根目录
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) resolve(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}

// Open 通过mmap映射整个文件，读取不再经过系统调用
func (s *LocalStore) Open(p string) (Reader, error) {
	f, err := os.Open(s.resolve(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "open %s", p)
		}
		return nil, errors.Wrapf(err, "open %s", p)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", p)
	}
	// 空文件无法映射
	if fi.Size() == 0 {
		return &mmapReader{Reader: bytes.NewReader(nil), f: f}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "mmap %s", p)
	}

	return &mmapReader{Reader: bytes.NewReader(m), m: m, f: f}, nil
}

// OpenAppend 追加方式打开，返回的*os.File支持Sync
func (s *LocalStore) OpenAppend(p string) (Writer, error) {
	f, err := os.OpenFile(s.resolve(p), os.O_WRONLY|os.O_APPEND, fileModePerm)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "append %s", p)
		}
		return nil, errors.Wrapf(err, "append %s", p)
	}
	return f, nil
}

func (s *LocalStore) Create(p string) (Writer, error) {
	full := s.resolve(p)
	if err := os.MkdirAll(filepath.Dir(full), dirModePerm); err != nil {
		return nil, errors.Wrapf(err, "create parent of %s", p)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileModePerm)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", p)
	}
	return f, nil
}

func (s *LocalStore) Exists(p string) (bool, error) {
	_, err := os.Stat(s.resolve(p))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", p)
}

func (s *LocalStore) Size(p string) (int64, error) {
	fi, err := os.Stat(s.resolve(p))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(ErrNotFound, "size %s", p)
		}
		return 0, errors.Wrapf(err, "stat %s", p)
	}
	return fi.Size(), nil
}

func (s *LocalStore) Rename(src, dst string) (bool, error) {
	if ok, err := s.Exists(src); err != nil || !ok {
		return false, err
	}

	full := s.resolve(dst)
	if err := os.MkdirAll(filepath.Dir(full), dirModePerm); err != nil {
		return false, errors.Wrapf(err, "create parent of %s", dst)
	}
	if err := os.Rename(s.resolve(src), full); err != nil {
		return false, errors.Wrapf(err, "rename %s to %s", src, dst)
	}
	return true, nil
}

func (s *LocalStore) Delete(p string, recursive bool) (bool, error) {
	full := s.resolve(p)
	if ok, err := s.Exists(p); err != nil || !ok {
		return false, err
	}

	var err error
	if recursive {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	if err != nil {
		return false, errors.Wrapf(err, "delete %s", p)
	}
	return true, nil
}

// mmapReader 基于映射内存的只读流，Close时解除映射
type mmapReader struct {
	*bytes.Reader
	m mmap.MMap
	f *os.File
}

func (r *mmapReader) Close() error {
	var err error
	if r.m != nil {
		err = r.m.Unmap()
		r.m = nil
	}
	if r.f != nil {
		err = errors.CombineErrors(err, r.f.Close())
		r.f = nil
	}
	return err
}
