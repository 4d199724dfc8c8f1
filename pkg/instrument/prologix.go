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

// Prologix drives a Prologix GPIB-USB controller. Several instruments on
// the same bus share one controller; each gets a *GPIBDevice handle and the
// controller switches the bus address before every exchange.
type Prologix struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	r      *bufio.Reader
	name   string
	addr   int
	refs   int
	closed bool
}

// OpenPrologix opens the controller's virtual COM port.
func OpenPrologix(path string, readTimeout time.Duration) (*Prologix, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", path)
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			_ = port.Close()
			return nil, pkgerrors.Wrapf(err, "failed to set read timeout on %s", path)
		}
	}

	p, err := NewPrologix(port, path)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return p, nil
}

// NewPrologix configures a controller reachable through rw: controller
// mode, manual read-after-write, EOI asserted, LF appended to commands.
func NewPrologix(rw io.ReadWriteCloser, name string) (*Prologix, error) {
	p := &Prologix{
		port: rw,
		r:    bufio.NewReader(rw),
		name: name,
		addr: -1,
	}

	for _, cmd := range []string{"++mode 1", "++auto 0", "++eoi 1", "++eos 2"} {
		if err := p.writeLine(cmd); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to configure prologix controller on %s", name)
		}
	}

	logrus.WithField("port", name).Debug("prologix controller configured")

	return p, nil
}

// Device returns a handle for the instrument at the given GPIB address.
// The controller port is closed when the last handle is closed.
func (p *Prologix) Device(addr int) *GPIBDevice {
	p.mu.Lock()
	p.refs++
	p.mu.Unlock()
	return &GPIBDevice{ctrl: p, addr: addr}
}

// Close releases the serial port regardless of open handles.
func (p *Prologix) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Prologix) closeLocked() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.port.Close()
}

func (p *Prologix) release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs--
	if p.refs > 0 {
		return nil
	}
	return p.closeLocked()
}

func (p *Prologix) selectLocked(addr int) error {
	if p.closed {
		return pkgerrors.Errorf("prologix controller on %s is closed", p.name)
	}
	if p.addr == addr {
		return nil
	}
	if err := p.writeLine(fmt.Sprintf("++addr %d", addr)); err != nil {
		return err
	}
	p.addr = addr
	return nil
}

func (p *Prologix) writeLine(s string) error {
	_, err := io.WriteString(p.port, s+"\n")
	return err
}

// escape protects bytes the controller would otherwise interpret.
func escape(cmd string) string {
	var b strings.Builder
	for i := 0; i < len(cmd); i++ {
		switch c := cmd[i]; c {
		case '\r', '\n', 0x1b, '+':
			b.WriteByte(0x1b)
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// GPIBDevice is one instrument behind a Prologix controller.
type GPIBDevice struct {
	ctrl      *Prologix
	addr      int
	closeOnce sync.Once
	closeErr  error
}

func (d *GPIBDevice) Command(cmd string) error {
	d.ctrl.mu.Lock()
	defer d.ctrl.mu.Unlock()

	logrus.WithFields(logrus.Fields{"gpib": d.addr, "cmd": cmd}).Trace("gpib write")

	if err := d.ctrl.selectLocked(d.addr); err != nil {
		return err
	}
	if err := d.ctrl.writeLine(escape(cmd)); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %q to gpib %d", cmd, d.addr)
	}
	return nil
}

func (d *GPIBDevice) Query(cmd string) (string, error) {
	d.ctrl.mu.Lock()
	defer d.ctrl.mu.Unlock()

	if err := d.ctrl.selectLocked(d.addr); err != nil {
		return "", err
	}
	if err := d.ctrl.writeLine(escape(cmd)); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to write %q to gpib %d", cmd, d.addr)
	}
	if err := d.ctrl.writeLine("++read eoi"); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to request read from gpib %d", d.addr)
	}

	resp, err := d.ctrl.r.ReadString('\n')
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to read response to %q from gpib %d", cmd, d.addr)
	}
	resp = strings.TrimRight(resp, "\r\n")

	logrus.WithFields(logrus.Fields{"gpib": d.addr, "cmd": cmd, "resp": resp}).Trace("gpib read")

	return resp, nil
}

func (d *GPIBDevice) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.ctrl.release()
	})
	return d.closeErr
}
