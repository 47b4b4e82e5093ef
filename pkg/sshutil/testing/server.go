package testing

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ssh"
)

// CommandHandler answers one exec request on a TestServer.
type CommandHandler func(cmd string) (stdout, stderr string, exitCode int)

// TestServer is an in-process SSH server accepting password auth, for
// exercising the real client without a network dependency.
type TestServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	handler  CommandHandler

	mu    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup

	stall atomic.Bool
}

// NewTestServer starts a server on 127.0.0.1 that accepts user/any with password.
func NewTestServer(password string, handler CommandHandler) (*TestServer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, err
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if string(pw) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &TestServer{listener: ln, config: config, handler: handler}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Host returns the listening IP.
func (s *TestServer) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port returns the listening port.
func (s *TestServer) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// Close stops accepting and drops every open connection.
func (s *TestServer) Close() {
	s.listener.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// StallChannels makes the server complete handshakes and answer keepalives
// but never confirm or reject a channel open, like a wedged sshd.
func (s *TestServer) StallChannels(on bool) {
	s.stall.Store(on)
}

func (s *TestServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

func (s *TestServer) serve(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()

	// Replies false to keepalives, which still proves liveness.
	go ssh.DiscardRequests(reqs)

	var held []ssh.NewChannel
	for newCh := range chans {
		if s.stall.Load() {
			held = append(held, newCh)
			continue
		}
		switch newCh.ChannelType() {
		case "session":
			ch, chReqs, err := newCh.Accept()
			if err != nil {
				continue
			}
			go s.session(ch, chReqs)
		case "direct-tcpip":
			go s.forward(newCh)
		default:
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
}

// forward serves a jump-host tunnel by proxying to the requested address.
func (s *TestServer) forward(newCh ssh.NewChannel) {
	var dest struct {
		DestAddr string
		DestPort uint32
		OrigAddr string
		OrigPort uint32
	}
	if err := ssh.Unmarshal(newCh.ExtraData(), &dest); err != nil {
		_ = newCh.Reject(ssh.ConnectionFailed, "bad forward request")
		return
	}
	target, err := net.Dial("tcp", net.JoinHostPort(dest.DestAddr, strconv.Itoa(int(dest.DestPort))))
	if err != nil {
		_ = newCh.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	ch, reqs, err := newCh.Accept()
	if err != nil {
		target.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(ch, target); done <- struct{}{} }()
	go func() { _, _ = io.Copy(target, ch); done <- struct{}{} }()
	<-done
	ch.Close()
	target.Close()
}

func (s *TestServer) session(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()

	for req := range reqs {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			return
		}
		_ = req.Reply(true, nil)

		stdout, stderr, code := "", "", 0
		if s.handler != nil {
			stdout, stderr, code = s.handler(payload.Command)
		}
		_, _ = ch.Write([]byte(stdout))
		_, _ = ch.Stderr().Write([]byte(stderr))
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
		return
	}
}
