package irc

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MaxLineSize 单行缓冲区大小（含行尾）
// 与 C 风格缓冲区一致保留 1 字节，单次最多读取 MaxLineSize-1 字节
const MaxLineSize = 8192

// lineReader 按 \r\n 切分字节流
type lineReader struct {
	r     *bufio.Reader
	buf   []byte
	limit int
}

func newLineReader(r io.Reader, max int) *lineReader {
	if max <= 0 {
		max = MaxLineSize
	}
	return &lineReader{
		r:     bufio.NewReaderSize(r, max),
		buf:   make([]byte, 0, max),
		limit: max - 1,
	}
}

// ReadLine 读取一行，返回内容不含行尾
// 读满 limit 字节（含行尾）仍无 \n 时返回截断的内容，下一次读取从剩余部分开始新行
// 流结束时先返回残留内容，再返回 io.EOF
func (lr *lineReader) ReadLine() (line string, truncated bool, err error) {
	lr.buf = lr.buf[:0]
	for len(lr.buf) < lr.limit {
		c, err := lr.r.ReadByte()
		if err != nil {
			if len(lr.buf) > 0 && errors.Is(err, io.EOF) {
				return string(trimTerminator(lr.buf)), false, nil
			}
			return "", false, err
		}
		lr.buf = append(lr.buf, c)
		if c == '\n' {
			return string(trimTerminator(lr.buf)), false, nil
		}
	}
	return string(bytes.TrimSuffix(lr.buf, []byte{'\r'})), true, nil
}

func trimTerminator(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}
