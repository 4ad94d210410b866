package xenv

import "github.com/caarlos0/env/v8"

// Prefix 环境变量前缀
const Prefix = "DSTA_"

/* example
type config struct {
	Target       string        `env:"TARGET"`                      // DSTA_TARGET
	Port         int           `env:"PORT" envDefault:"5000"`      // DSTA_PORT
	ProbeTimeout time.Duration `env:"PROBE_TIMEOUT"`               // DSTA_PROBE_TIMEOUT=5s
	Log          struct {
		Level string `env:"LOG_LEVEL"`                             // DSTA_LOG_LEVEL
	}
}
*/

// EnvLoad 只覆盖已设置的环境变量, 未设置的字段保持原值
func EnvLoad(conf interface{}) error {
	return env.ParseWithOptions(conf, env.Options{Prefix: Prefix})
}

// EnvLoadWith 指定环境变量表, 测试使用
func EnvLoadWith(conf interface{}, environment map[string]string) error {
	return env.ParseWithOptions(conf, env.Options{Prefix: Prefix, Environment: environment})
}
