package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristianoliveira/badgesync/internal/colors"
	"github.com/cristianoliveira/badgesync/internal/config"
	"github.com/cristianoliveira/badgesync/internal/storage"
)

type fakeClient struct {
	count       uint
	err         error
	principal   string
	message     string
	markedCount int64
	markedID    string
	items       []storage.Item
	limit       int
}

func (f *fakeClient) FetchCount(_ context.Context, principal string) (uint, error) {
	f.principal = principal
	return f.count, f.err
}

func (f *fakeClient) AddItem(_ context.Context, principal, message string) (string, error) {
	f.principal = principal
	f.message = message
	return "42", f.err
}

func (f *fakeClient) MarkAllRead(_ context.Context, principal string) (int64, error) {
	f.principal = principal
	return f.markedCount, f.err
}

func (f *fakeClient) MarkRead(_ context.Context, principal, id string) error {
	f.principal = principal
	f.markedID = id
	return f.err
}

func (f *fakeClient) ListUnread(_ context.Context, principal string, limit int) ([]storage.Item, error) {
	f.principal = principal
	f.limit = limit
	return f.items, f.err
}

func (f *fakeClient) Version() string { return "1.2.3" }

func withPrincipal(t *testing.T, principal string) {
	t.Helper()
	prev := config.Get("principal", "")
	config.Set("principal", principal)
	t.Cleanup(func() { config.Set("principal", prev) })
}

func captureColors(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	colors.SetOutput(&buf, &buf)
	t.Cleanup(func() { colors.SetOutput(nil, nil) })
	return &buf
}

func TestVersionCmd(t *testing.T) {
	c := NewVersionCmd(&fakeClient{})
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{})

	require.NoError(t, c.Execute())
	assert.Equal(t, "badgesync version 1.2.3\n", out.String())
}

func TestCountCmd(t *testing.T) {
	withPrincipal(t, "alice")
	tests := []struct {
		name  string
		count uint
		args  []string
		want  string
	}{
		{"compact with color", 3, []string{"--format", "compact", "--color", "red"}, "#[fg=red]🔔 3#[default]\n"},
		{"count only", 5, []string{"--format", "count-only"}, "5\n"},
		{"zero prints nothing", 0, []string{"--format", "count-only"}, ""},
		{"zero shown", 0, []string{"--format", "count-only", "--show-zero"}, "0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{count: tt.count}
			c := NewCountCmd(client)
			var out bytes.Buffer
			c.SetOut(&out)
			c.SetArgs(tt.args)

			require.NoError(t, c.Execute())
			assert.Equal(t, tt.want, out.String())
			assert.Equal(t, "alice", client.principal)
		})
	}
}

func TestCountCmdErrors(t *testing.T) {
	withPrincipal(t, "alice")
	c := NewCountCmd(&fakeClient{err: errors.New("db down")})
	c.SetOut(&bytes.Buffer{})
	c.SetArgs([]string{})
	err := c.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count: db down")

	c = NewCountCmd(&fakeClient{count: 1})
	c.SetOut(&bytes.Buffer{})
	c.SetArgs([]string{"--format", "fancy"})
	assert.Error(t, c.Execute())
}

func TestCountCmdRequiresPrincipal(t *testing.T) {
	withPrincipal(t, "")
	c := NewCountCmd(&fakeClient{})
	c.SetOut(&bytes.Buffer{})
	c.SetArgs([]string{})
	assert.ErrorIs(t, c.Execute(), errNoPrincipal)
}

func TestAddCmd(t *testing.T) {
	withPrincipal(t, "alice")
	out := captureColors(t)
	client := &fakeClient{}
	c := NewAddCmd(client)
	c.SetArgs([]string{"build", "finished"})

	require.NoError(t, c.Execute())
	assert.Equal(t, "alice", client.principal)
	assert.Equal(t, "build finished", client.message)
	assert.Contains(t, out.String(), "Item 42 added for alice")
}

func TestAddCmdRejectsBlankMessage(t *testing.T) {
	withPrincipal(t, "alice")
	c := NewAddCmd(&fakeClient{})
	c.SetErr(&bytes.Buffer{})
	c.SetArgs([]string{"  "})
	assert.Error(t, c.Execute())

	c = NewAddCmd(&fakeClient{})
	c.SetErr(&bytes.Buffer{})
	c.SetArgs([]string{})
	assert.Error(t, c.Execute())
}

func TestMarkReadCmd(t *testing.T) {
	withPrincipal(t, "bob")
	out := captureColors(t)
	client := &fakeClient{markedCount: 4}
	c := NewMarkReadCmd(client)
	c.SetArgs([]string{})

	require.NoError(t, c.Execute())
	assert.Equal(t, "bob", client.principal)
	assert.Contains(t, out.String(), "Marked 4 item(s) as read")
}

func TestMarkReadCmdError(t *testing.T) {
	withPrincipal(t, "bob")
	c := NewMarkReadCmd(&fakeClient{err: errors.New("offline")})
	c.SetArgs([]string{})
	err := c.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark-read: offline")
}

func TestMarkReadCmdSingleItem(t *testing.T) {
	withPrincipal(t, "bob")
	out := captureColors(t)
	client := &fakeClient{}
	c := NewMarkReadCmd(client)
	c.SetArgs([]string{"17"})

	require.NoError(t, c.Execute())
	assert.Equal(t, "bob", client.principal)
	assert.Equal(t, "17", client.markedID)
	assert.Contains(t, out.String(), "Item 17 marked as read")
}

func TestListCmd(t *testing.T) {
	withPrincipal(t, "alice")
	created := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	client := &fakeClient{items: []storage.Item{
		{ID: "2", Message: "review requested", CreatedAt: created},
		{ID: "1", Message: "build failed", CreatedAt: created},
	}}

	c := NewListCmd(client)
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{"--limit", "5"})
	require.NoError(t, c.Execute())

	assert.Equal(t, "alice", client.principal)
	assert.Equal(t, 5, client.limit)
	stamp := created.Local().Format(time.DateTime)
	assert.Equal(t, "2\t"+stamp+"\treview requested\n1\t"+stamp+"\tbuild failed\n", out.String())
}

func TestListCmdJSON(t *testing.T) {
	withPrincipal(t, "alice")
	created := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	c := NewListCmd(&fakeClient{items: []storage.Item{{ID: "a1", Message: "hi", CreatedAt: created}}})
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{"--json"})
	require.NoError(t, c.Execute())

	assert.JSONEq(t, `[{"id":"a1","message":"hi","created_at":"2026-05-04T10:30:00Z"}]`, out.String())
}

func TestListCmdEmptyAndErrors(t *testing.T) {
	withPrincipal(t, "alice")
	c := NewListCmd(&fakeClient{})
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{})
	require.NoError(t, c.Execute())
	assert.Equal(t, "No unread items\n", out.String())

	c = NewListCmd(&fakeClient{})
	c.SetArgs([]string{"--limit", "-1"})
	assert.Error(t, c.Execute())

	c = NewListCmd(&fakeClient{err: errors.New("offline")})
	c.SetArgs([]string{})
	err := c.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list: offline")
}

func TestConstructorsPanicOnNilClient(t *testing.T) {
	assert.Panics(t, func() { NewVersionCmd(nil) })
	assert.Panics(t, func() { NewCountCmd(nil) })
	assert.Panics(t, func() { NewAddCmd(nil) })
	assert.Panics(t, func() { NewMarkReadCmd(nil) })
	assert.Panics(t, func() { NewListCmd(nil) })
	assert.Panics(t, func() { NewWatchCmd(nil) })
}
