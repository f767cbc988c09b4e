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

// Package config 加载segio的配置文件，支持yaml/toml/json，环境变量以SEGIO_为前缀覆盖。
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TimeWtr/segio"
)

const envPrefix = "SEGIO"

// Config 顶层配置
type Config struct {
	Root   string `mapstructure:"root"`
	Output Output `mapstructure:"output"`
	Input  Input  `mapstructure:"input"`
	Log    Log    `mapstructure:"log"`
}

// Output 写入端配置，字节数使用"64MiB"这样的字符串
type Output struct {
	Template     string        `mapstructure:"template"`
	TempName     string        `mapstructure:"temp_name"`
	TimeFormat   string        `mapstructure:"time_format"`
	Policy       string        `mapstructure:"policy"`
	Threshold    string        `mapstructure:"threshold"`
	Interval     time.Duration `mapstructure:"interval"`
	Terminator   string        `mapstructure:"terminator"`
	BufferSize   string        `mapstructure:"buffer_size"`
	PoolSize     int           `mapstructure:"pool_size"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	Append       bool          `mapstructure:"append"`
}

// Input 读取端配置
type Input struct {
	Splits   int    `mapstructure:"splits"`
	Encoding string `mapstructure:"encoding"`
}

// Log 日志配置
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Root: ".",
		Output: Output{
			Template:     "segment-{seq}.txt",
			TimeFormat:   segio.DefaultTimeFormat,
			Policy:       "never",
			Terminator:   "\n",
			BufferSize:   humanize.IBytes(segio.DefaultBufferSize),
			PoolSize:     segio.DefaultPoolSize,
			DrainTimeout: segio.DefaultDrainTimeout,
		},
		Input: Input{
			Splits: 1,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load 读取配置文件，file为空时只使用默认值和环境变量
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	}

	c := new(Config)
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("root", d.Root)
	v.SetDefault("output.template", d.Output.Template)
	v.SetDefault("output.temp_name", d.Output.TempName)
	v.SetDefault("output.time_format", d.Output.TimeFormat)
	v.SetDefault("output.policy", d.Output.Policy)
	v.SetDefault("output.threshold", d.Output.Threshold)
	v.SetDefault("output.interval", d.Output.Interval)
	v.SetDefault("output.terminator", d.Output.Terminator)
	v.SetDefault("output.buffer_size", d.Output.BufferSize)
	v.SetDefault("output.pool_size", d.Output.PoolSize)
	v.SetDefault("output.drain_timeout", d.Output.DrainTimeout)
	v.SetDefault("output.append", d.Output.Append)
	v.SetDefault("input.splits", d.Input.Splits)
	v.SetDefault("input.encoding", d.Input.Encoding)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// WriterOptions 把输出配置转换为Writer的选项
func (c *Config) WriterOptions(logger *zap.Logger) ([]segio.Option, error) {
	o := c.Output
	policy, err := segio.ParseRotationPolicy(o.Policy)
	if err != nil {
		return nil, err
	}

	bufSize, err := humanize.ParseBytes(o.BufferSize)
	if err != nil {
		return nil, errors.Wrapf(err, "parse buffer_size %q", o.BufferSize)
	}

	opts := []segio.Option{
		segio.WithLogger(logger),
		segio.WithNameTemplate(o.Template),
		segio.WithTempName(o.TempName),
		segio.WithTimeFormat(o.TimeFormat),
		segio.WithTerminator([]byte(o.Terminator)),
		segio.WithBufferSize(int(bufSize)),
		segio.WithPoolSize(o.PoolSize),
		segio.WithDrainTimeout(o.DrainTimeout),
		segio.WithAppend(o.Append),
	}

	switch policy {
	case segio.RotateSize:
		n, err := humanize.ParseBytes(o.Threshold)
		if err != nil {
			return nil, errors.Wrapf(err, "parse size threshold %q", o.Threshold)
		}
		opts = append(opts, segio.WithRotation(policy, int64(n)))
	case segio.RotateTupleCount:
		n, err := strconv.ParseInt(strings.TrimSpace(o.Threshold), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse count threshold %q", o.Threshold)
		}
		opts = append(opts, segio.WithRotation(policy, n))
	case segio.RotateTime:
		opts = append(opts, segio.WithRotationInterval(o.Interval))
	default:
		opts = append(opts, segio.WithRotation(policy, 0))
	}

	return opts, nil
}

// NewLogger 根据日志配置创建zap日志
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", c.Log.Level)
	}

	var zc zap.Config
	if strings.EqualFold(c.Log.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
