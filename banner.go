package ircium

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/tokmz/ircium/pkg/irc"
)

// Version 版本号
const Version = "0.3.0"

// banner ASCII Art
const banner = `
 ██╗██████╗  ██████╗██╗██╗   ██╗███╗   ███╗
 ██║██╔══██╗██╔════╝██║██║   ██║████╗ ████║   ircium 多服务器 IRC 客户端
 ██║██████╔╝██║     ██║██║   ██║██╔████╔██║   github: https://github.com/tokmz/ircium
 ██║██╔══██╗██║     ██║██║   ██║██║╚██╔╝██║   version: %s
 ██║██║  ██║╚██████╗██║╚██████╔╝██║ ╚═╝ ██║
 ╚═╝╚═╝  ╚═╝ ╚═════╝╚═╝ ╚═════╝ ╚═╝     ╚═╝
`

const (
	secureColor = "\033[32m" // 绿色
	plainColor  = "\033[33m" // 黄色
	resetColor  = "\033[0m"
)

// printBanner 打印启动 banner 和服务器列表
func (e *Engine) printBanner() {
	out := os.Stdout

	fPrint(out, banner, Version)
	fPrint(out, "\n")

	if len(e.servers) > 0 {
		printServers(out, e.servers)
		fPrint(out, "\n")
	}

	fPrint(out, "[ircium] Go version: %s | OS: %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fPrint(out, "[ircium] Max connections: %d | Quit message: %q\n", e.file.Client.MaxConnections, e.file.Client.QuitMessage)
	if e.admin != nil {
		fPrint(out, "[ircium] Admin listening on http://%s\n", e.admin.Addr)
	}
}

// printServers 格式化打印服务器列表，TLS 连接为绿色
func printServers(out io.Writer, servers []*irc.Server) {
	maxNameLen := 0
	for _, s := range servers {
		if len(s.String()) > maxNameLen {
			maxNameLen = len(s.String())
		}
	}

	for _, s := range servers {
		scheme, color := "tcp", plainColor
		if s.Secure {
			scheme, color = "tls", secureColor
		}
		nick := "-"
		if s.User != nil {
			nick = s.User.Nick
		}
		fPrint(out, "[ircium] %s%-3s%s %-*s --> %s (%s)\n",
			color, scheme, resetColor,
			maxNameLen, s.String(),
			s.Addr(), nick)
	}
}

// fPrint 打印到 writer，忽略错误（banner 输出场景）
func fPrint(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}
