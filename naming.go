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
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TokenHost = "{host}"
	TokenPID  = "{pid}"
	TokenSeq  = "{seq}"
	TokenTime = "{time}"
	TokenUUID = "{uuid}"
	// TokenName 只在临时文件名模板中使用，表示最终文件名的base部分
	TokenName = "{name}"
)

var templateTokens = []string{TokenHost, TokenPID, TokenSeq, TokenTime, TokenUUID, TokenName}

// nameTemplate 段文件名模板，在段打开时展开
type nameTemplate struct {
	raw string
}

// templateVars 展开模板需要的变量
type templateVars struct {
	host       string
	pid        int
	seq        int32
	now        time.Time
	timeFormat string
	name       string
}

func newTemplateVars(host string, seq int32, now time.Time, timeFormat string) templateVars {
	return templateVars{
		host:       host,
		pid:        os.Getpid(),
		seq:        seq,
		now:        now,
		timeFormat: timeFormat,
	}
}

// dynamic 模板中包含变量时为动态文件名模式，检查点需要保存原始模板
func (t nameTemplate) dynamic() bool {
	for _, tok := range templateTokens {
		if strings.Contains(t.raw, tok) {
			return true
		}
	}
	return false
}

func (t nameTemplate) expand(v templateVars) string {
	if !t.dynamic() {
		return t.raw
	}

	layout := v.timeFormat
	if layout == "" {
		layout = DefaultTimeFormat
	}
	args := []string{
		TokenHost, v.host,
		TokenPID, strconv.Itoa(v.pid),
		TokenSeq, strconv.FormatInt(int64(v.seq), 10),
		TokenTime, v.now.Format(layout),
		TokenName, v.name,
	}
	// 每个段只生成一次uuid，多次出现时保持一致
	if strings.Contains(t.raw, TokenUUID) {
		args = append(args, TokenUUID, uuid.NewString())
	}

	return strings.NewReplacer(args...).Replace(t.raw)
}

// tempPath 根据临时文件名模板计算临时路径，模板没有目录部分时与最终文件放在同一目录
func (t nameTemplate) tempPath(final string, v templateVars) string {
	dir, base := path.Split(final)
	v.name = base
	tmp := t.expand(v)
	if strings.Contains(tmp, "/") {
		return tmp
	}
	return path.Join(dir, tmp)
}

// hostname 主机名，获取失败时使用localhost
func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}
