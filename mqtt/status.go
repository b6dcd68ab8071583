package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"scanbox/input"
	"scanbox/scanner"
)

const (
	statusPrefix  = "scanbox/status/node/"
	controlPrefix = "scanbox/control/node/"
)

// ScanMessage is published for every presented code.
type ScanMessage struct {
	Payload string    `json:"payload"`
	Format  string    `json:"format"`
	Session string    `json:"session"`
	At      time.Time `json:"at"`
}

// StateMessage is published on every lifecycle transition.
type StateMessage struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// StatusTopic returns the status topic for kind ("scan", "state", "ping").
func (c *Client) StatusTopic(kind string) string {
	return statusPrefix + c.clientID + "/" + kind
}

// ControlTopic is the wildcard subscription for remote commands.
func (c *Client) ControlTopic() string {
	return controlPrefix + c.clientID + "/#"
}

// PublishScan reports a presented code.
func (c *Client) PublishScan(s scanner.Scan) {
	c.publishJSON(c.StatusTopic("scan"), false, ScanMessage{
		Payload: s.Payload.Text,
		Format:  s.Payload.Format,
		Session: s.SessionID.String(),
		At:      s.At.UTC(),
	})
}

// PublishState reports a lifecycle transition. The message is retained so
// late subscribers see the current state.
func (c *Client) PublishState(s scanner.State) {
	c.publishJSON(c.StatusTopic("state"), true, StateMessage{State: s.String(), At: time.Now().UTC()})
}

// PingLoop publishes a ping every interval until ctx is done.
func (c *Client) PingLoop(ctx context.Context, every time.Duration) {
	if !c.enabled || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			c.Publish(c.StatusTopic("ping"), []byte(now.UTC().Format(time.RFC3339)), false)
		}
	}
}

func (c *Client) publishJSON(topic string, retained bool, v any) {
	if !c.enabled {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Str("topic", topic).Msg("encode status")
		return
	}
	c.Publish(topic, b, retained)
}

// ParseControl maps a message on the control topic to an action.
func (c *Client) ParseControl(topic string) (input.Action, bool) {
	prefix := controlPrefix + c.clientID + "/"
	if !strings.HasPrefix(topic, prefix) {
		return 0, false
	}
	cmd := strings.TrimPrefix(topic, prefix)
	if cmd == "provider" {
		return input.ActionRefresh, true
	}
	a, err := input.ParseAction(cmd)
	if err != nil {
		return 0, false
	}
	return a, true
}
