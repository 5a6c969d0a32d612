package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/bassosimone/safeconn"

	werrors "github.com/mcncl/webserver/internal/errors"
	"github.com/mcncl/webserver/internal/metrics"
)

// trackedListener assigns every accepted connection the next counter id.
type trackedListener struct {
	net.Listener
	counter *Counter
	logger  *slog.Logger
}

func (l *trackedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	id := l.counter.Next()
	metrics.RecordConnectionOpened()

	logger := l.logger.With(
		slog.Uint64("conn", id),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
	)
	logger.Debug("accepted")

	return &trackedConn{Conn: conn, id: id, logger: logger}, nil
}

// trackedConn logs the first I/O failure on a connection. Net/http closes
// the connection afterwards, so a failure never outlives its connection.
type trackedConn struct {
	net.Conn
	id        uint64
	logger    *slog.Logger
	failOnce  sync.Once
	closeOnce sync.Once
}

func (c *trackedConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err != nil {
		c.fail("read", err)
	}
	return n, err
}

func (c *trackedConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if err != nil {
		c.fail("write", err)
	}
	return n, err
}

func (c *trackedConn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() {
		metrics.RecordConnectionClosed()
		c.logger.Debug("closed")
	})
	return err
}

func (c *trackedConn) fail(op string, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return
	}

	c.failOnce.Do(func() {
		terr := werrors.NewTransportError(op+" failed", err)
		class := werrors.Classify(err)
		metrics.RecordTransportError(class)

		level := slog.LevelWarn
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// idle and read timeouts end connections routinely
			level = slog.LevelDebug
		}
		c.logger.Log(context.Background(), level, "transport error",
			slog.String("op", op),
			slog.String("err", terr.Error()),
			slog.String("err_class", class),
		)
	})
}
