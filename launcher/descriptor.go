// Package launcher parses transport descriptors from the command line and
// wires them into running servers sharing one backend.
//
// Grounded on cmd/server/main.go's signal-handling shutdown pattern,
// generalized from one fixed TCP server to N transports of mixed kinds.
package launcher

import (
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/modbus-emu/slave/common"
)

// Kind identifies which wire a descriptor describes.
type Kind int

const (
	KindTCP Kind = iota
	KindUDP
	KindSerial
)

// Descriptor is one parsed `tcp:HOST:PORT` / `udp:HOST:PORT` /
// `serial:PATH:BAUD-BITS-PARITY-STOPBITS` command-line argument.
type Descriptor struct {
	Kind Kind

	// TCP, UDP
	Address string

	// Serial
	Path     string
	Mode     *serial.Mode
	UnitAddr common.UnitID
}

// ParseDescriptor parses one positional CLI argument into a Descriptor.
func ParseDescriptor(raw string) (Descriptor, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return Descriptor{}, fmt.Errorf("transport descriptor %q: expected KIND:REST", raw)
	}

	switch parts[0] {
	case "tcp":
		return Descriptor{Kind: KindTCP, Address: parts[1]}, nil
	case "udp":
		return Descriptor{Kind: KindUDP, Address: parts[1]}, nil
	case "serial":
		return parseSerialDescriptor(parts[1])
	default:
		return Descriptor{}, fmt.Errorf("transport descriptor %q: unknown kind %q (want tcp, udp, or serial)", raw, parts[0])
	}
}

// parseSerialDescriptor parses PATH:BAUD-BITS-PARITY-STOPBITS[:UNIT], e.g.
// "/dev/ttyUSB0:19200-8-N-1" or "/dev/ttyUSB0:19200-8-N-1:3" to answer only
// to unit address 3.
func parseSerialDescriptor(rest string) (Descriptor, error) {
	fields := strings.Split(rest, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return Descriptor{}, fmt.Errorf("serial descriptor %q: expected PATH:BAUD-BITS-PARITY-STOPBITS[:UNIT]", rest)
	}

	path := fields[0]
	mode, err := parseSerialMode(fields[1])
	if err != nil {
		return Descriptor{}, fmt.Errorf("serial descriptor %q: %w", rest, err)
	}

	unitAddr := common.UnitID(1)
	if len(fields) == 3 {
		u, err := strconv.Atoi(fields[2])
		if err != nil || u < 0 || u > 255 {
			return Descriptor{}, fmt.Errorf("serial descriptor %q: invalid unit address %q", rest, fields[2])
		}
		unitAddr = common.UnitID(u)
	}

	return Descriptor{Kind: KindSerial, Path: path, Mode: mode, UnitAddr: unitAddr}, nil
}

func parseSerialMode(spec string) (*serial.Mode, error) {
	fields := strings.Split(spec, "-")
	if len(fields) != 4 {
		return nil, fmt.Errorf("invalid mode %q: expected BAUD-BITS-PARITY-STOPBITS", spec)
	}

	baud, err := strconv.Atoi(fields[0])
	if err != nil || baud <= 0 {
		return nil, fmt.Errorf("invalid baud rate %q", fields[0])
	}

	bits, err := strconv.Atoi(fields[1])
	if err != nil || bits < 5 || bits > 8 {
		return nil, fmt.Errorf("invalid data bits %q", fields[1])
	}

	parity, err := parseParity(fields[2])
	if err != nil {
		return nil, err
	}

	stopBits, err := parseStopBits(fields[3])
	if err != nil {
		return nil, err
	}

	return &serial.Mode{
		BaudRate: baud,
		DataBits: bits,
		Parity:   parity,
		StopBits: stopBits,
	}, nil
}

func parseParity(s string) (serial.Parity, error) {
	switch strings.ToUpper(s) {
	case "N":
		return serial.NoParity, nil
	case "E":
		return serial.EvenParity, nil
	case "O":
		return serial.OddParity, nil
	default:
		return 0, fmt.Errorf("invalid parity %q (want N, E, or O)", s)
	}
}

func parseStopBits(s string) (serial.StopBits, error) {
	switch s {
	case "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return 0, fmt.Errorf("invalid stop bits %q (want 1, 1.5, or 2)", s)
	}
}
