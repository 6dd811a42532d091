package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"vibe-meeting/internal/dto"
)

var errDialRefused = errors.New("connection refused")

// fakeConn 由测试控制收到的事件和断开时机
type fakeConn struct {
	incoming  chan dto.Envelope
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []dto.Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan dto.Envelope, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadEnvelope() (dto.Envelope, error) {
	// 先把已经推送的事件读完再报告断开
	select {
	case env := <-f.incoming:
		return env, nil
	default:
	}
	select {
	case env := <-f.incoming:
		return env, nil
	case <-f.closed:
		return dto.Envelope{}, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteEnvelope(env dto.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, env)
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// drop 模拟网络断开
func (f *fakeConn) drop() { _ = f.Close() }

func (f *fakeConn) push(event string, payload interface{}) {
	env, err := dto.NewEnvelope(event, payload)
	if err != nil {
		panic(err)
	}
	f.incoming <- env
}

func (f *fakeConn) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.written))
	for _, env := range f.written {
		out = append(out, env.Event)
	}
	return out
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeDialer 按顺序返回预设的结果，用完后一直失败
type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	dials   int
}

type dialResult struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) queue(results ...dialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, results...)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.results) == 0 {
		return nil, errDialRefused
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeScheduler 记录定时器，由测试手动触发
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.delay)
	}
	return out
}

// fireLast 同步执行最后一个定时器的回调
func (s *fakeScheduler) fireLast() {
	t := s.last()
	if t == nil {
		panic("no timer scheduled")
	}
	t.fn()
}

func newTestController(dialer *fakeDialer) (*Controller, *fakeScheduler) {
	sched := &fakeScheduler{}
	c := NewController(Config{URL: "ws://test/socket"}, dialer)
	c.SetAfterFunc(sched.AfterFunc)
	return c, sched
}
