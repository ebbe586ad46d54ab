package singleinstance

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"time"
)

const defaultProbeTimeout = 300 * time.Millisecond

type tcpClient struct{ pin int }

func newTCPClient(pin int) *tcpClient { return &tcpClient{pin: pin} }

func (c *tcpClient) Detect(ctx context.Context) (string, bool) {
	timeout := defaultProbeTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < timeout {
			timeout = d
		}
	}
	start, end := portRange(c.pin)
	for port := start; port <= end; port++ {
		if ctx.Err() != nil {
			return "", false
		}
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if !ping(addr, timeout) {
			continue
		}
		status, _ := requestStatus(addr, timeout)
		return status, true
	}
	return "", false
}

func ping(addr string, timeout time.Duration) bool {
	resp, err := roundTrip(addr, pingRequest, timeout)
	return err == nil && resp == pongResponse
}

func requestStatus(addr string, timeout time.Duration) (string, error) {
	resp, err := roundTrip(addr, statusRequest, timeout)
	if err != nil {
		return "", err
	}
	if len(resp) < len(statusResponse) || resp[:len(statusResponse)] != statusResponse {
		return "", io.ErrUnexpectedEOF
	}
	return resp[len(statusResponse):], nil
}

// roundTrip sends one request line and returns everything the server wrote
// before closing the connection.
func roundTrip(addr, request string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(request); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	b, err := io.ReadAll(conn)
	if err != nil && len(b) == 0 {
		return "", err
	}
	return string(b), nil
}
