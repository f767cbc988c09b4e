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
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TimeWtr/segio/config"
)

func main() {
	_ = cmd.Execute()
}

var cmd = &cobra.Command{
	Use:   "segio",
	Short: "Rotating segment writer and split line reader",
}

var flag = struct {
	Config      string
	Root        string
	LogLevel    string
	MetricsAddr string
}{}

func init() {
	cmd.PersistentFlags().StringVarP(&flag.Config, "config", "c", "", "Config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&flag.Root, "root", "", "Store root directory, overrides the config file")
	cmd.PersistentFlags().StringVar(&flag.LogLevel, "log-level", "", "Log level, overrides the config file")
	cmd.PersistentFlags().StringVar(&flag.MetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")

	cmd.AddCommand(cmdWrite, cmdRead)
}

// loadConfig 读取配置，命令行参数优先
func loadConfig() *config.Config {
	c, err := config.Load(flag.Config)
	check(err)
	if flag.Root != "" {
		c.Root = flag.Root
	}
	if flag.LogLevel != "" {
		c.Log.Level = flag.LogLevel
	}
	return c
}

func newLogger(c *config.Config) *zap.Logger {
	logger, err := c.NewLogger()
	check(err)
	return logger
}

func serveMetrics(logger *zap.Logger) {
	if flag.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(flag.MetricsAddr, mux)
		if err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}
