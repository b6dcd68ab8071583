package input

import (
	"bufio"
	"context"
	"io"
	"strings"
)

func lineAction(line string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "ok", "y":
		return ActionOK, true
	case "d", "dismiss":
		return ActionDismiss, true
	case "t", "torch":
		return ActionTorch, true
	case "r", "retry":
		return ActionRetry, true
	case "p", "refresh":
		return ActionRefresh, true
	}
	return 0, false
}

// ReadLines maps lines of r to actions until r is exhausted or ctx is
// cancelled. An empty line is ActionOK.
func ReadLines(ctx context.Context, r io.Reader, h Handler) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if a, ok := lineAction(sc.Text()); ok {
			h(a)
		}
	}
	return sc.Err()
}
