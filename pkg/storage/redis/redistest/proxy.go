// Package redistest provides a TCP proxy that loses a Redis reply on purpose,
// for testing how callers handle a command whose outcome is unknown.
package redistest

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"
	"testing"
)

// ReplyDropper forwards connections to a Redis server. The first time a
// client sends a command named Command, the server's reply is swallowed and
// the client connection is closed after the server has executed it.
type ReplyDropper struct {
	Command string

	ln      net.Listener
	target  string
	dropped atomic.Bool
	wg      sync.WaitGroup
}

// NewReplyDropper starts a proxy in front of target. It is closed with t.
func NewReplyDropper(t testing.TB, target, command string) *ReplyDropper {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("redistest: listen: %v", err)
	}
	p := &ReplyDropper{Command: command, ln: ln, target: target}
	p.wg.Add(1)
	go p.serve()
	t.Cleanup(func() {
		ln.Close()
		p.wg.Wait()
	})
	return p
}

// Addr is the address clients should dial.
func (p *ReplyDropper) Addr() string {
	return p.ln.Addr().String()
}

// Dropped reports whether a reply has been lost yet.
func (p *ReplyDropper) Dropped() bool {
	return p.dropped.Load()
}

func (p *ReplyDropper) serve() {
	defer p.wg.Done()
	for {
		client, err := p.ln.Accept()
		if err != nil {
			return
		}
		go p.relay(client)
	}
}

func (p *ReplyDropper) relay(client net.Conn) {
	defer client.Close()
	server, err := net.Dial("tcp", p.target)
	if err != nil {
		return
	}
	defer server.Close()

	var armed atomic.Bool
	name := bytes.ToLower([]byte(p.Command))

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := client.Read(buf)
			if n > 0 {
				if !p.dropped.Load() && bytes.Contains(bytes.ToLower(buf[:n]), name) {
					armed.Store(true)
				}
				if _, werr := server.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				server.Close()
				return
			}
		}
	}()

	buf := make([]byte, 32*1024)
	for {
		n, err := server.Read(buf)
		if n > 0 {
			if armed.Load() && p.dropped.CompareAndSwap(false, true) {
				// The server has run the command; the client never hears about it.
				return
			}
			if _, werr := client.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
