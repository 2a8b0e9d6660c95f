package alerting

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmailSender_Validation(t *testing.T) {
	_, err := NewEmailSender(SMTPConfig{FromAddress: "a@example.com"})
	assert.Error(t, err)

	_, err = NewEmailSender(SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err)

	sender, err := NewEmailSender(SMTPConfig{Host: "smtp.example.com", FromAddress: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, sender.config.Port)
	assert.Nil(t, sender.auth)

	sender, err = NewEmailSender(SMTPConfig{Host: "smtp.example.com", FromAddress: "a@example.com", User: "u", Password: "p"})
	require.NoError(t, err)
	assert.NotNil(t, sender.auth)
}

func TestExtractEmail(t *testing.T) {
	assert.Equal(t, "alerts@example.com", extractEmail("Sitewarden <alerts@example.com>"))
	assert.Equal(t, "alerts@example.com", extractEmail("alerts@example.com"))
}

func TestEmailSender_BuildMessage(t *testing.T) {
	sender := &EmailSender{config: SMTPConfig{FromAddress: "Sitewarden <alerts@example.com>"}}

	msg := string(sender.buildMessage("ops@example.com", "[High] Shop down", "line one\nline two"))

	assert.True(t, strings.HasPrefix(msg, "From: Sitewarden <alerts@example.com>\r\nTo: ops@example.com\r\nSubject: [High] Shop down\r\n"))
	assert.Contains(t, msg, "\r\n\r\nline one\r\nline two")
}

// fakeSMTP accepts one message and returns it on the channel.
func fakeSMTP(t *testing.T) (host string, port int, received <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		var envelope []string
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 localhost")
			case "MAIL", "RCPT":
				envelope = append(envelope, line)
				_ = tp.PrintfLine("250 OK")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotLines()
				if err != nil {
					return
				}
				_ = tp.PrintfLine("250 OK")
				out <- strings.Join(envelope, "\n") + "\n" + strings.Join(data, "\n")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, out
}

func TestEmailSender_Send(t *testing.T) {
	host, port, received := fakeSMTP(t)
	sender, err := NewEmailSender(SMTPConfig{Host: host, Port: port, FromAddress: "Sitewarden <alerts@example.com>"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = sender.Send(ctx, "ops@example.com", Alert{Subject: "[High] Shop down", Body: "details"})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Contains(t, msg, "MAIL FROM:<alerts@example.com>")
		assert.Contains(t, msg, "RCPT TO:<ops@example.com>")
		assert.Contains(t, msg, "Subject: [High] Shop down")
		assert.Contains(t, msg, "details")
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestEmailSender_Send_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	sender, err := NewEmailSender(SMTPConfig{Host: "127.0.0.1", Port: port, FromAddress: "a@example.com"})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "ops@example.com", Alert{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial smtp")
}
