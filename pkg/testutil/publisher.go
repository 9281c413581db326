package testutil

import (
	"context"
	"sync"
)

// Published 捕获到的一条事件
type Published struct {
	Subject string
	Data    interface{}
}

// Publisher 记录所有发布的事件，Err 非空时发布失败
type Publisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (p *Publisher) Publish(_ context.Context, subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, Published{Subject: subject, Data: data})
	return nil
}

// Subjects 按顺序返回已发布的主题
func (p *Publisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Subject)
	}
	return out
}

// Events 返回已捕获事件的副本
func (p *Publisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}
