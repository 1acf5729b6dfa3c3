package config

import "github.com/tokmz/ircium/pkg/errors"

// 配置包专用错误定义
var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New(3001, "配置文件未找到")
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New(3003, "配置读取失败")
	// ErrConfigDecode 配置解码失败
	ErrConfigDecode = errors.New(3004, "配置解码失败")
	// ErrConfigInvalid 配置内容无效
	ErrConfigInvalid = errors.New(3005, "配置无效")
)
