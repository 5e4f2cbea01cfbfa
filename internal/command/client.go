package command

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"firestige.xyz/chronod/internal/log"
	"firestige.xyz/chronod/internal/task"
)

// Client submits task groups to a running scheduler.
type Client struct {
	addr    string
	timeout time.Duration
}

// NewClient creates a submitter for the given address.
func NewClient(addr string, timeout time.Duration) *Client {
	if addr == "" {
		addr = DefaultListenAddr
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{addr: addr, timeout: timeout}
}

// SubmitGroup pushes one serialized task group and waits for the
// server's acknowledgement. The write side is shut down after sending so
// the server sees EOF as the end of the document.
func (c *Client) SubmitGroup(group task.GroupConfig) error {
	payload, err := json.Marshal(Query{Kind: QueryNewTaskGroup, Group: &group})
	if err != nil {
		return fmt.Errorf("serialize task group: %w", err)
	}

	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("send task group: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return fmt.Errorf("close write side: %w", err)
		}
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("read acknowledgement: %w", err)
	}

	var ack Query
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("parse acknowledgement: %w", err)
	}
	if ack.Kind != QueryOk {
		return fmt.Errorf("unexpected acknowledgement %q", ack.Kind)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"group": group.Name,
		"addr":  c.addr,
	}).Info("task group accepted")
	return nil
}
