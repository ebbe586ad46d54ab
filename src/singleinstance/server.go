package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	residentHost   = "127.0.0.1"
	pingRequest    = "PING\n"
	pongResponse   = "PONG\n"
	statusRequest  = "STATUS\n"
	statusResponse = "OK\n"
	requestTimeout = 3 * time.Second
)

type tcpServer struct {
	pin    int
	status StatusFunc

	mu   sync.Mutex
	lis  net.Listener
	port int
}

func newTCPServer(pin int, status StatusFunc) *tcpServer {
	return &tcpServer{pin: pin, status: status}
}

// Start binds only the first port of the range, so two instances always
// contend for the same port.
func (s *tcpServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return nil
	}
	port, _ := portRange(s.pin)
	addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		if ping(addr, 500*time.Millisecond) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("singleinstance: bind %s: %w", addr, err)
	}
	s.lis = lis
	s.port = port
	log.Printf("singleinstance: holding %s", addr)
	go s.acceptLoop(lis)
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return nil
}

func (s *tcpServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *tcpServer) acceptLoop(lis net.Listener) {
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		go s.serve(c)
	}
}

func (s *tcpServer) serve(c net.Conn) {
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(requestTimeout))
	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		return
	}
	w := bufio.NewWriter(c)
	switch line {
	case pingRequest:
		_, _ = w.WriteString(pongResponse)
	case statusRequest:
		status := ""
		if s.status != nil {
			status = s.status()
		}
		log.Printf("singleinstance: status requested by %s", c.RemoteAddr())
		_, _ = w.WriteString(statusResponse + status)
	default:
		_, _ = w.WriteString("ERROR\nunknown request")
	}
	_ = w.Flush()
}

func (s *tcpServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	err := s.lis.Close()
	s.lis = nil
	s.port = 0
	return err
}
