package launcher

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

var (
	// ErrPortOccupied is returned by the fixed-port policy when the
	// configured port cannot be bound.
	ErrPortOccupied = errors.New("port already in use")

	// ErrNoFreePort is returned by the scanning policy when every port in
	// the range is taken.
	ErrNoFreePort = errors.New("no free port in range")
)

// PortFree reports whether host:port can be bound right now. The probe
// listener is closed before returning.
func PortFree(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// AcquirePort applies the port policy. With an empty portRange the fixed
// port must be free. With a [start, end] range the first free port in
// ascending order is returned.
func AcquirePort(host string, port int, portRange []int) (int, error) {
	if len(portRange) != 2 {
		if !PortFree(host, port) {
			return 0, fmt.Errorf("%w: %s (close the running instance and try again)",
				ErrPortOccupied, net.JoinHostPort(host, strconv.Itoa(port)))
		}
		return port, nil
	}

	start, end := portRange[0], portRange[1]
	for p := start; p <= end; p++ {
		if PortFree(host, p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %s ports %d-%d", ErrNoFreePort, host, start, end)
}
