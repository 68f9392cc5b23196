package mailer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drydocs/billing/pkg/config"
)

func TestSend_NoHostDropsNotice(t *testing.T) {
	s := New(&config.Config{}, zap.NewNop().Sugar())

	err := s.SendDunningNotice(context.Background(), "user@example.com", "pro", "")
	require.NoError(t, err)
}

func TestSend_EmptyRecipient(t *testing.T) {
	s := New(&config.Config{}, zap.NewNop().Sugar())

	err := s.SendCancellationNotice(context.Background(), "", "pro", time.Now())
	require.Error(t, err)
}

func TestSend_BoundedByTimeout(t *testing.T) {
	// a server that accepts the connection but never sends the SMTP greeting
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(10 * time.Second)
	}()

	cfg := &config.Config{}
	cfg.SMTP.Host = "127.0.0.1"
	cfg.SMTP.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.SMTP.TimeoutSeconds = 1
	s := New(cfg, zap.NewNop().Sugar())

	start := time.Now()
	err = s.SendDunningNotice(context.Background(), "user@example.com", "pro", "")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
