package archive

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tokmz/ircium/pkg/irc"
)

// Record 归档的一条入站消息
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Server     string    `gorm:"size:128;not null;index:idx_server_received,priority:1" json:"server"`
	Command    string    `gorm:"size:32;not null;index" json:"command"`
	Source     string    `gorm:"size:255" json:"source,omitempty"`
	Params     string    `gorm:"type:text" json:"params"` // JSON 数组
	Raw        string    `gorm:"type:text" json:"raw"`
	ReceivedAt time.Time `gorm:"not null;index:idx_server_received,priority:2" json:"received_at"`
}

// TableName 表名
func (Record) TableName() string { return "irc_messages" }

// ParamList 解码 Params
func (r *Record) ParamList() []string {
	var out []string
	if r.Params == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Params), &out)
	return out
}

// NewRecord 由入站消息构造 Record
func NewRecord(server *irc.Server, msg *irc.Message, at time.Time) *Record {
	params := msg.Params
	if params == nil {
		params = []string{}
	}
	b, _ := json.Marshal(params)

	r := &Record{
		Server:     server.Name,
		Command:    msg.Command,
		Source:     msg.Source,
		Params:     string(b),
		ReceivedAt: at,
	}
	if line, err := msg.Line(); err == nil {
		r.Raw = strings.TrimRight(line, "\r\n")
	}
	return r
}
