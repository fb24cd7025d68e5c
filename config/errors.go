package config

import "github.com/ceyewan/aegis/xerrors"

var (
	// ErrConfigNotFound 未找到配置文件
	ErrConfigNotFound = xerrors.New("config: config file not found")

	// ErrLoadFailed 配置加载失败
	ErrLoadFailed = xerrors.New("config: load failed")
)
