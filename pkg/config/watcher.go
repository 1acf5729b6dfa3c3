package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// startWatch 开始监控配置文件变更
// 调用方必须持有 mu 写锁
func (c *Config) startWatch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.mu.RLock()
		watching := c.watching
		onChange := c.onChange
		c.mu.RUnlock()

		if !watching || onChange == nil {
			return
		}
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				c.reportError(fmt.Errorf("配置变更回调 panic: %v", r))
			}
		}()
		onChange()
	})
	c.viper.WatchConfig()
	c.watching = true
}

// StopWatch 停止监控配置文件
// viper 未提供停止底层 fsnotify watcher 的方法，此处仅让回调失效
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// StartWatch 开始监控配置文件变更，重复调用无副作用
func (c *Config) StartWatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.viper.ConfigFileUsed() == "" {
		return ErrConfigNotFound.WithMessage("配置尚未加载")
	}
	if c.watching {
		return nil
	}

	c.startWatch()
	return nil
}

// IsWatching 是否正在监控
func (c *Config) IsWatching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

// reportError 报告错误，优先使用 onError 回调，否则输出到 stderr
func (c *Config) reportError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()

	if onError != nil {
		onError(err)
	} else {
		fmt.Fprintf(os.Stderr, "[config] %v\n", err)
	}
}
