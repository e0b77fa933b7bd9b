//go:build linux

package protocol

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/opencontroller/padbridge/pkg/types"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// SerialDialer returns a LinkDialer that opens the configured serial port
// in raw 8N1 mode.
func SerialDialer(cfg types.RadioConfig) LinkDialer {
	return func(ctx context.Context) (Link, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return openSerial(cfg.Port, cfg.Baud)
	}
}

type serialLink struct {
	f *os.File
}

func openSerial(port string, baud int) (Link, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", baud)
	}

	fd, err := unix.Open(port, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port, err)
	}

	tio := unix.Termios{
		Cflag:  unix.CREAD | unix.CLOCAL | unix.CS8 | speed,
		Ispeed: speed,
		Ospeed: speed,
	}
	// Block reads until at least one byte arrives.
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &tio); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", port, err)
	}
	// Back to blocking mode now that the port is configured.
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", port, err)
	}

	return &serialLink{f: os.NewFile(uintptr(fd), port)}, nil
}

func (l *serialLink) Read(p []byte) (int, error)  { return l.f.Read(p) }
func (l *serialLink) Write(p []byte) (int, error) { return l.f.Write(p) }
func (l *serialLink) Close() error                { return l.f.Close() }
