package command

import (
	"fmt"
	"net"
)

type WebConfig struct {
	// Addr serves status and metrics. Empty disables the web worker.
	Addr string `json:"addr"`
}

func (c *WebConfig) validate() error {
	if c.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid addr %q: %w", c.Addr, err)
	}
	return nil
}
