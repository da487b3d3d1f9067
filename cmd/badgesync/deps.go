package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/cristianoliveira/badgesync/internal/badge"
	"github.com/cristianoliveira/badgesync/internal/config"
	"github.com/cristianoliveira/badgesync/internal/hooks"
	"github.com/cristianoliveira/badgesync/internal/storage"
	"github.com/cristianoliveira/badgesync/internal/version"
)

// backendClient opens the configured backend on first use, after the root
// command has loaded the configuration.
type backendClient struct {
	open func() (*storage.Backend, error)

	mu      sync.Mutex
	backend *storage.Backend
}

func newBackendClient() *backendClient {
	return &backendClient{open: storage.NewFromConfig}
}

var appClient = newBackendClient()

func (c *backendClient) get() (*storage.Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		return c.backend, nil
	}
	b, err := c.open()
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", config.Get("count_backend", storage.BackendSQLite), err)
	}
	c.backend = b
	return b, nil
}

// Close releases the backend if it was opened.
func (c *backendClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return nil
	}
	err := c.backend.Close()
	c.backend = nil
	return err
}

func (c *backendClient) FetchCount(ctx context.Context, principal string) (uint, error) {
	b, err := c.get()
	if err != nil {
		return 0, err
	}
	return b.Counts.FetchCount(ctx, principal)
}

// AddItem stores the item and runs item-added hooks.
func (c *backendClient) AddItem(ctx context.Context, principal, message string) (string, error) {
	b, err := c.get()
	if err != nil {
		return "", err
	}
	id, err := b.Writer.Add(ctx, principal, message)
	if err != nil {
		return "", err
	}
	runner := hooks.NewRunner(hooks.OptionsFromConfig())
	err = runner.Run(ctx, hooks.PointItemAdded, map[string]string{
		"BADGESYNC_PRINCIPAL": principal,
		"BADGESYNC_ITEM_ID":   id,
		"BADGESYNC_MESSAGE":   message,
	})
	return id, err
}

func (c *backendClient) MarkAllRead(ctx context.Context, principal string) (int64, error) {
	b, err := c.get()
	if err != nil {
		return 0, err
	}
	return b.Writer.MarkAllRead(ctx, principal)
}

func (c *backendClient) MarkRead(ctx context.Context, principal, id string) error {
	b, err := c.get()
	if err != nil {
		return err
	}
	return b.Inbox.MarkRead(ctx, principal, id)
}

func (c *backendClient) ListUnread(ctx context.Context, principal string, limit int) ([]storage.Item, error) {
	b, err := c.get()
	if err != nil {
		return nil, err
	}
	return b.Inbox.ListUnread(ctx, principal, limit)
}

// Sources returns the count source and the event source named by events.
// An empty name uses the configured event backend.
func (c *backendClient) Sources(events string) (badge.CountSource, badge.EventSource, error) {
	b, err := c.get()
	if err != nil {
		return nil, nil, err
	}
	src, err := b.Events(events)
	if err != nil {
		return nil, nil, err
	}
	return b.Counts, src, nil
}

func (c *backendClient) Version() string {
	return version.String()
}
