// Package robotapi reads robot telemetry from the dashboard backend.
package robotapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

type Battery struct {
	Status string `json:"status"`
	Level  int    `json:"level"`
}

type Joint struct {
	Name    string `json:"name"`
	Angle   int    `json:"angle"`
	Healthy bool   `json:"healthy"`
}

type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	State string `json:"state"`
}

type RobotStatus struct {
	Online   bool   `json:"online"`
	LastSeen string `json:"lastSeen"`
}

// Telemetry is one combined read of every endpoint.
type Telemetry struct {
	Battery Battery
	Joints  []Joint
	Tasks   []Task
	Robot   *RobotStatus
}

type Client struct {
	base string
	hc   *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: %w: %s", path, ErrUnexpectedStatus, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) Battery(ctx context.Context) (Battery, error) {
	var b Battery
	err := c.get(ctx, "/items/battery", &b)
	return b, err
}

func (c *Client) Joints(ctx context.Context) ([]Joint, error) {
	var j []Joint
	err := c.get(ctx, "/items/joints", &j)
	return j, err
}

func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var t []Task
	err := c.get(ctx, "/items/tasks", &t)
	return t, err
}

func (c *Client) RobotStatus(ctx context.Context) (RobotStatus, error) {
	var s RobotStatus
	err := c.get(ctx, "/robot/status", &s)
	return s, err
}

// Fetch reads all endpoints concurrently. The robot status endpoint is
// optional: older backends do not serve it.
func (c *Client) Fetch(ctx context.Context) (*Telemetry, error) {
	var t Telemetry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		t.Battery, err = c.Battery(gctx)
		return err
	})
	g.Go(func() (err error) {
		t.Joints, err = c.Joints(gctx)
		return err
	})
	g.Go(func() (err error) {
		t.Tasks, err = c.Tasks(gctx)
		return err
	})
	g.Go(func() error {
		s, err := c.RobotStatus(gctx)
		if err != nil {
			log.Debug().Err(err).Str("module", "robotapi").Msg("robot status unavailable")
			return nil
		}
		t.Robot = &s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &t, nil
}
