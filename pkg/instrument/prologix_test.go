package instrument

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLine is a serial link with canned responses.
type fakeLine struct {
	in     *strings.Reader
	out    bytes.Buffer
	closed int
}

func newFakeLine(responses ...string) *fakeLine {
	return &fakeLine{in: strings.NewReader(strings.Join(responses, ""))}
}

func (f *fakeLine) Read(p []byte) (int, error)  { return f.in.Read(p) }
func (f *fakeLine) Write(p []byte) (int, error) { return f.out.Write(p) }
func (f *fakeLine) Close() error                { f.closed++; return nil }

func (f *fakeLine) lines() []string {
	return strings.Split(strings.TrimSuffix(f.out.String(), "\n"), "\n")
}

func TestPrologixConfigure(t *testing.T) {
	line := newFakeLine()
	_, err := NewPrologix(line, "fake")
	require.NoError(t, err)
	assert.Equal(t, []string{"++mode 1", "++auto 0", "++eoi 1", "++eos 2"}, line.lines())
}

func TestPrologixAddressSwitching(t *testing.T) {
	line := newFakeLine("+1.000000E-02\n", "4.2E9\n")
	p, err := NewPrologix(line, "fake")
	require.NoError(t, err)
	line.out.Reset()

	source := NewKeithley(p.Device(22))
	analyzer := NewFSEK(p.Device(20))

	require.NoError(t, source.SetCurrent(0.01))
	v, err := source.GetSetCurrent()
	require.NoError(t, err)
	assert.InDelta(t, 0.01, v, 1e-12)

	f, err := analyzer.PeakFrequency()
	require.NoError(t, err)
	assert.InDelta(t, 4.2e9, f, 1)

	assert.Equal(t, []string{
		"++addr 22",
		"SOUR:CURR 1.000000000E-02",
		"SOUR:CURR?",
		"++read eoi",
		"++addr 20",
		"CALC:MARK:X?",
		"++read eoi",
	}, line.lines())
}

func TestPrologixEscape(t *testing.T) {
	assert.Equal(t, "SOUR:CURR \x1b+1", escape("SOUR:CURR +1"))
	assert.Equal(t, "plain", escape("plain"))
}

func TestPrologixClosesOnLastHandle(t *testing.T) {
	line := newFakeLine()
	p, err := NewPrologix(line, "fake")
	require.NoError(t, err)

	a := p.Device(22)
	b := p.Device(20)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 0, line.closed)

	require.NoError(t, b.Close())
	assert.Equal(t, 1, line.closed)

	err = b.Command("*RST")
	assert.Error(t, err)
}
