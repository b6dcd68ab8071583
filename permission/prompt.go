package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompt asks on a terminal. The answer is remembered for Check.
//
// A single goroutine reads in, started by the first Request and running
// until in returns an error. A Request cancelled while waiting leaves that
// goroutine blocked on the read; the next line answers the next Request.
type Prompt struct {
	in  io.Reader
	out io.Writer

	once    sync.Once
	answers chan string

	mu      sync.Mutex
	state   State
	readErr error // set before answers is closed
}

// NewPrompt creates a Prompt reading answers from in.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out, answers: make(chan string)}
}

// Check implements Gate.Check.
func (p *Prompt) Check() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Request implements Gate.Request. End of input counts as a refusal.
func (p *Prompt) Request(ctx context.Context) (bool, error) {
	p.once.Do(func() { go p.read() })
	fmt.Fprint(p.out, "Allow scanbox to use the camera? [y/N] ")

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line, ok := <-p.answers:
		if !ok {
			p.mu.Lock()
			err := p.readErr
			p.mu.Unlock()
			if err != io.EOF {
				return false, err
			}
			p.set(DeniedSoft)
			return false, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			p.set(Granted)
			return true, nil
		default:
			p.set(DeniedSoft)
			return false, nil
		}
	}
}

func (p *Prompt) read() {
	r := bufio.NewReader(p.in)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			p.answers <- line
		}
		if err != nil {
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			close(p.answers)
			return
		}
	}
}

func (p *Prompt) set(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
