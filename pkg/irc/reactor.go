package irc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// run 事件循环：等待入站行、定时器、出站唤醒或停止信号，
// 每次唤醒后先清空入站队列再清空出站队列
func (c *Conn) run(ctx context.Context) (err error) {
	c.lifeMu.Lock()
	switch {
	case c.closed:
		c.lifeMu.Unlock()
		return ErrConnectionClosed
	case c.started:
		c.lifeMu.Unlock()
		return ErrReactorRunning
	}
	c.started = true
	c.lifeMu.Unlock()

	c.state.Store(int32(StateRunning))
	c.log.Debug("事件循环启动")

	readErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.watch(readErr)
	}()

	bootstrap := time.NewTimer(c.opts.BootstrapTimeout)
	defer bootstrap.Stop()

	var (
		idle   *time.Timer
		idleC  <-chan time.Time
		pingAt time.Time
	)
	if c.opts.IdleTimeout > 0 {
		idle = time.NewTimer(c.opts.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for c.running.Load() {
		select {
		case <-ctx.Done():
			c.log.Info("上下文结束，发送 QUIT", zap.Error(ctx.Err()))
			if line, serr := c.serialize(NewMessage("QUIT", c.opts.QuitMessage)); serr == nil && c.closing.CompareAndSwap(false, true) {
				c.outbound.PushBack(line)
			}
			c.running.Store(false)
		case <-c.stopCh:
		case <-c.inbound.Notify():
		case <-c.outbound.Notify():
		case <-bootstrap.C:
			// 仅作为一次心跳
			c.log.Debug("启动定时器触发")
		case <-idleC:
			if terr := c.checkIdle(idle, &pingAt); terr != nil {
				c.log.Warn("连接空闲超时", zap.Error(terr))
				err = terr
				c.running.Store(false)
			}
		case rerr := <-readErr:
			if !c.closing.Load() {
				c.log.Warn("读取失败，停止事件循环", zap.Error(rerr))
				err = rerr
			}
			c.running.Store(false)
		}

		c.state.Store(int32(StateDraining))
		c.drainInbound()
		if werr := c.drainOutbound(); werr != nil {
			c.log.Error("写入失败，停止事件循环", zap.Error(werr))
			err = werr
			c.running.Store(false)
		}
		if c.running.Load() {
			c.state.Store(int32(StateRunning))
		}
	}

	// 最后一次清空，保证已入队的 QUIT 被发送
	c.drainInbound()
	if err == nil {
		err = c.drainOutbound()
	}
	c.closing.Store(true)
	c.teardown()
	wg.Wait()
	return err
}

// watch 读取并切分行，推入入站队列
func (c *Conn) watch(errCh chan<- error) {
	lr := newLineReader(c.transport, c.opts.MaxLineSize)
	for {
		line, truncated, err := lr.ReadLine()
		if err == nil || line != "" {
			c.lastRead.Store(time.Now().UnixNano())
			c.linesIn.Add(1)
			c.opts.Metrics.IncLinesIn(c.server.Name)
			if truncated {
				c.opts.Metrics.IncTruncatedLines(c.server.Name)
				c.log.Debug("行超过上限，已截断", zap.Int("max", c.opts.MaxLineSize))
			}
			c.inbound.PushBack(line)
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				errCh <- ErrConnectionClosed.WithError(err)
			case errors.Is(err, net.ErrClosed):
				errCh <- ErrConnectionClosed.WithError(err)
			default:
				errCh <- &SocketError{Op: "read", Err: err}
			}
			return
		}
	}
}

// checkIdle 空闲超时处理：先发送 PING，再次超时仍无数据则返回 *TimeoutError
func (c *Conn) checkIdle(t *time.Timer, pingAt *time.Time) error {
	timeout := c.opts.IdleTimeout
	last := time.Unix(0, c.lastRead.Load())
	if !pingAt.IsZero() && last.After(*pingAt) {
		*pingAt = time.Time{}
	}

	if since := time.Since(last); since < timeout {
		t.Reset(timeout - since)
		return nil
	}
	if !pingAt.IsZero() {
		return &TimeoutError{Op: "idle", After: timeout}
	}

	line, err := c.serialize(NewMessage("PING", c.server.Host))
	if err != nil {
		return err
	}
	*pingAt = time.Now()
	c.outbound.PushBack(line)
	t.Reset(timeout)
	return nil
}

func (c *Conn) drainInbound() {
	_, _ = c.inbound.DrainAll(func(line string) error {
		c.handleLine(line)
		return nil
	})
}

func (c *Conn) drainOutbound() error {
	_, err := c.outbound.DrainAll(c.writeLine)
	return err
}

// writeLine 写一行，失败时按退避重试，耗尽后返回 ErrWriteFailed
func (c *Conn) writeLine(line string) error {
	rc := &c.opts.WriteRetry
	b := []byte(line)

	var lastErr error
	for attempt := 0; attempt < rc.MaxAttempts; attempt++ {
		if attempt > 0 {
			c.opts.Metrics.IncWriteRetries(c.server.Name)
			time.Sleep(rc.backoff(attempt - 1))
		}
		if c.opts.WriteTimeout > 0 {
			_ = c.transport.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		}

		n, err := c.transport.Write(b)
		b = b[n:]
		if err == nil {
			c.linesOut.Add(1)
			c.opts.Metrics.IncLinesOut(c.server.Name)
			return nil
		}
		lastErr = err
		if !rc.RetryIf(err) {
			break
		}
		c.log.Warn("写入失败，准备重试", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	c.opts.Metrics.IncWriteFailures(c.server.Name)
	c.opts.Events.Publish(Event{Type: EventWriteFailed, Server: c.server, Handle: c.handle, Err: lastErr, Time: time.Now()})
	return ErrWriteFailed.WithError(lastErr)
}
