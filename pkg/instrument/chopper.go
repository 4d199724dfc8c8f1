package instrument

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Chopper is the hot/cold chopper controller on a serial line. It answers
// every PATH command with OK once the move is complete.
type Chopper struct {
	port      io.ReadWriteCloser
	r         *bufio.Reader
	name      string
	closeOnce sync.Once
	closeErr  error
}

var _ ChopperSwitch = &Chopper{}

// OpenChopper opens the chopper controller on a serial port.
func OpenChopper(path string, readTimeout time.Duration) (*Chopper, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", path)
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			_ = port.Close()
			return nil, pkgerrors.Wrapf(err, "failed to set read timeout on %s", path)
		}
	}
	return NewChopper(port), nil
}

// NewChopper wraps an already open link.
func NewChopper(rw io.ReadWriteCloser) *Chopper {
	return &Chopper{port: rw, r: bufio.NewReader(rw), name: "chopper"}
}

func (c *Chopper) SetPath(p Path) error {
	cmd := fmt.Sprintf("PATH%d", int(p))
	logrus.WithFields(logrus.Fields{"path": p, "cmd": cmd}).Trace("chopper write")

	if _, err := io.WriteString(c.port, cmd+"\n"); err != nil {
		return wrap(c.name, "set path "+p.String(), err)
	}
	resp, err := c.r.ReadString('\n')
	if err != nil {
		return wrap(c.name, "set path "+p.String(), err)
	}
	if resp = strings.TrimSpace(resp); resp != "OK" {
		return wrap(c.name, "set path "+p.String(), pkgerrors.Errorf("unexpected response %q", resp))
	}
	return nil
}

func (c *Chopper) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = wrap(c.name, "close", c.port.Close())
	})
	return c.closeErr
}
