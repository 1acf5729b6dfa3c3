package irc

import (
	"net"
	"strconv"
)

// User 注册信息（PASS/NICK/USER）
type User struct {
	Nick     string
	Ident    string
	RealName string
	Password string
}

// TLSOptions 安全连接选项
type TLSOptions struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
}

// Server 服务器描述，由调用方持有，核心只读
type Server struct {
	Name   string
	Host   string
	Port   int
	Secure bool
	User   *User
	TLS    TLSOptions
}

// ID 服务器稳定标识，内容相同的两个 Server 视为同一服务器
func (s *Server) ID() string {
	return s.Name + "|" + s.Addr()
}

// Addr host:port
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// String 服务器名称，未命名时返回地址
func (s *Server) String() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Addr()
}

// Validate 校验必填字段
func (s *Server) Validate() error {
	switch {
	case s == nil:
		return ErrInvalidConfig.WithMessage("irc: server is nil")
	case s.Host == "":
		return ErrInvalidConfig.WithMessage("irc: server host is required")
	case s.Port <= 0 || s.Port > 65535:
		return ErrInvalidConfig.WithMessage("irc: server port out of range: " + strconv.Itoa(s.Port))
	}
	if s.User != nil && s.User.Nick == "" {
		return ErrInvalidConfig.WithMessage("irc: nick is required when user is set")
	}
	return nil
}
