package instrument

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Transport exchanges newline terminated SCPI messages with one instrument.
type Transport interface {
	io.Closer
	// Command sends cmd without waiting for a response.
	Command(cmd string) error
	// Query sends cmd and returns the response line without its terminator.
	Query(cmd string) (string, error)
}

// DefaultLXIPort is the raw SCPI socket port of LXI instruments.
const DefaultLXIPort = 5025

// LXI is a SCPI transport over a raw TCP socket.
type LXI struct {
	address     string
	conn        net.Conn
	r           *bufio.Reader
	readTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

// DialLXI connects to an LXI instrument. The port defaults to 5025 when
// address has none. A zero readTimeout leaves reads unbounded.
func DialLXI(ctx context.Context, address string, readTimeout time.Duration) (*LXI, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultLXIPort))
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to %s", address)
	}

	logrus.WithField("address", address).Debug("connected to LXI instrument")

	return &LXI{
		address:     address,
		conn:        conn,
		r:           bufio.NewReader(conn),
		readTimeout: readTimeout,
	}, nil
}

func (l *LXI) Command(cmd string) error {
	logrus.WithFields(logrus.Fields{"address": l.address, "cmd": cmd}).Trace("lxi write")

	if _, err := io.WriteString(l.conn, cmd+"\n"); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %q", cmd)
	}
	return nil
}

func (l *LXI) Query(cmd string) (string, error) {
	if err := l.Command(cmd); err != nil {
		return "", err
	}

	if l.readTimeout > 0 {
		_ = l.conn.SetReadDeadline(time.Now().Add(l.readTimeout))
		defer func() { _ = l.conn.SetReadDeadline(time.Time{}) }()
	}

	resp, err := l.r.ReadString('\n')
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to read response to %q", cmd)
	}
	resp = strings.TrimRight(resp, "\r\n")

	logrus.WithFields(logrus.Fields{"address": l.address, "cmd": cmd, "resp": resp}).Trace("lxi read")

	return resp, nil
}

func (l *LXI) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}

// parseFloat parses a numeric SCPI response. Instruments that return
// several comma separated values yield the first one.
func parseFloat(resp string) (float64, error) {
	resp = strings.TrimSpace(resp)
	if i := strings.IndexByte(resp, ','); i >= 0 {
		resp = resp[:i]
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "unexpected numeric response %q", resp)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'E', 9, 64)
}
