package irc

import (
	"bytes"
	"errors"

	"github.com/ergochat/irc-go/ircmsg"
)

// Message 解析后的 IRC 消息
type Message = ircmsg.Message

// NewMessage 构造不带标签与来源的消息
func NewMessage(command string, params ...string) *Message {
	m := ircmsg.MakeMessage(nil, "", command, params...)
	return &m
}

// Parser 行解析器
type Parser interface {
	Parse(line []byte) (*Message, error)
}

// Serializer 消息序列化器，返回的行以 \r\n 结尾
type Serializer interface {
	Serialize(msg *Message) ([]byte, error)
}

// Codec 基于 ircmsg 的默认 Parser/Serializer
type Codec struct {
	// TruncateLen 大于 0 时截断超长正文
	TruncateLen int
}

// Parse 解析服务端发来的一行
func (c Codec) Parse(line []byte) (*Message, error) {
	m, err := ircmsg.ParseLineStrict(string(line), false, c.TruncateLen)
	// 截断后的消息仍可用
	if err != nil && !errors.Is(err, ircmsg.ErrorBodyTooLong) {
		return nil, &ParseError{Line: string(line), Err: err}
	}
	if hasTrailingMarker(line, m.Params) {
		m.ForceTrailing()
	}
	return &m, nil
}

// hasTrailingMarker 最后一个参数是否以 " :" 引出
// 中间参数不能以 ':' 开头，因此行尾为 " :"+最后参数 时即为 trailing 形式
func hasTrailingMarker(line []byte, params []string) bool {
	if len(params) == 0 {
		return false
	}
	line = bytes.TrimRight(line, "\r\n")
	last := params[len(params)-1]
	return len(line) >= len(last)+2 &&
		bytes.HasSuffix(line, []byte(last)) &&
		bytes.HasSuffix(line[:len(line)-len(last)], []byte(" :"))
}

// Serialize 序列化客户端发往服务端的消息
func (c Codec) Serialize(msg *Message) ([]byte, error) {
	b, err := msg.LineBytesStrict(true, c.TruncateLen)
	if err != nil && !errors.Is(err, ircmsg.ErrorBodyTooLong) {
		return nil, err
	}
	if !bytes.HasSuffix(b, []byte("\r\n")) {
		b = append(b, '\r', '\n')
	}
	return b, nil
}
