package transport

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/xelaj/go-dry/ioutil"
	"golang.org/x/net/proxy"
)

type tcpConn struct {
	cancelReader *ioutil.CancelableReader
	conn         net.Conn
	timeout      time.Duration
}

type TCPConnConfig struct {
	Ctx      context.Context
	Host     string
	Timeout  time.Duration
	ProxyUrl string
}

// NewTCP dials a DC's TCP endpoint, optionally through a SOCKS5/HTTP
// proxy (ProxyUrl), matching the teacher's dual dial path in
// internal/transport/conn_tcp.go.
func NewTCP(cfg TCPConnConfig) (Conn, error) {
	d := net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 15 * time.Second,
	}

	var conn net.Conn
	var err error
	if cfg.ProxyUrl != "" {
		u, perr := url.Parse(cfg.ProxyUrl)
		if perr != nil {
			return nil, errors.Wrap(perr, "parsing proxy url")
		}
		dialer, derr := proxy.FromURL(u, &d)
		if derr != nil {
			return nil, errors.Wrap(derr, "building proxy dialer")
		}
		conn, err = dialer.Dial("tcp", cfg.Host)
	} else {
		conn, err = d.DialContext(cfg.Ctx, "tcp", cfg.Host)
	}
	if err != nil {
		return nil, errors.Wrap(err, "dialing tcp")
	}

	return &tcpConn{
		cancelReader: ioutil.NewCancelableReader(cfg.Ctx, conn),
		conn:         conn,
		timeout:      cfg.Timeout,
	}, nil
}

func (t *tcpConn) Close() error {
	return t.conn.Close()
}

func (t *tcpConn) Write(b []byte) (int, error) {
	return t.conn.Write(b)
}

func (t *tcpConn) Read(b []byte) (int, error) {
	if t.timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return 0, errors.Wrap(err, "setting read deadline")
		}
	}

	n, err := t.cancelReader.Read(b)
	if err != nil {
		if e, ok := err.(*net.OpError); ok && e.Timeout() {
			return 0, errors.Wrap(err, "read timed out, reconnect required")
		}
		switch err {
		case io.EOF, context.Canceled:
			return 0, err
		default:
			return 0, errors.Wrap(err, "unexpected read error")
		}
	}
	return n, nil
}
