// Package smtptest provides an in-process SMTP server for tests.
//
// The server speaks just enough SMTP for net/smtp clients: EHLO/HELO,
// STARTTLS, AUTH PLAIN, MAIL, RCPT, DATA, RSET, NOOP and QUIT. It serves a
// throwaway self-signed certificate, so clients must skip verification.
package smtptest

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// Options configures a Server.
type Options struct {
	Username string
	Password string

	// StartTLS serves plain TCP and offers STARTTLS. Otherwise the listener
	// speaks TLS from the first byte.
	StartTLS bool
	// HideStartTLS keeps STARTTLS out of the EHLO reply.
	HideStartTLS bool
	// HideAuth keeps AUTH out of the EHLO reply and answers AUTH with 502.
	HideAuth bool
	// Refuse lists recipients answered with 550.
	Refuse []string
}

// Message is one accepted DATA transaction.
type Message struct {
	From string
	To   []string
	Data string
}

// Server is a running test server.
type Server struct {
	Host string
	Port int

	opts      Options
	listener  net.Listener
	tlsConfig *tls.Config

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	commands []string
	messages []Message
	wg       sync.WaitGroup
}

// NewServer starts a server on a random loopback port. It is closed by t.Cleanup.
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()

	cert, err := selfSignedCertificate()
	if err != nil {
		t.Fatalf("smtptest: failed to create certificate: %v", err)
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	var listener net.Listener
	if opts.StartTLS {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
	} else {
		listener, err = tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	}
	if err != nil {
		t.Fatalf("smtptest: failed to listen: %v", err)
	}

	addr := listener.Addr().(*net.TCPAddr)
	s := &Server{
		Host:      "127.0.0.1",
		Port:      addr.Port,
		opts:      opts,
		listener:  listener,
		tlsConfig: tlsConfig,
		conns:     make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)

	return s
}

// Messages returns the accepted messages.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Commands returns every command line received, AUTH payloads masked.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Close stops the listener and drops open connections.
func (s *Server) Close() {
	_ = s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				_ = conn.Close()
			}()
			s.handle(conn)
		}()
	}
}

type session struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	secure bool
	from   string
	to     []string
}

func (ss *session) reply(lines ...string) {
	for _, line := range lines {
		_, _ = ss.writer.WriteString(line + "\r\n")
	}
	_ = ss.writer.Flush()
}

func (ss *session) readLine() (string, error) {
	line, err := ss.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Server) handle(conn net.Conn) {
	ss := &session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		secure: !s.opts.StartTLS,
	}

	ss.reply("220 localhost ESMTP smtptest")

	for {
		line, err := ss.readLine()
		if err != nil {
			return
		}

		verb := strings.ToUpper(line)
		s.record(line)

		switch {
		case strings.HasPrefix(verb, "EHLO"):
			lines := []string{"250-localhost"}
			if !ss.secure && !s.opts.HideStartTLS {
				lines = append(lines, "250-STARTTLS")
			}
			if !s.opts.HideAuth {
				lines = append(lines, "250-AUTH PLAIN")
			}
			lines = append(lines, "250 HELP")
			ss.reply(lines...)
		case strings.HasPrefix(verb, "HELO"):
			ss.reply("250 localhost")
		case verb == "STARTTLS":
			if ss.secure || s.opts.HideStartTLS {
				ss.reply("503 STARTTLS not available")
				continue
			}
			ss.reply("220 Ready to start TLS")
			tlsConn := tls.Server(conn, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			ss.conn = tlsConn
			ss.reader = bufio.NewReader(tlsConn)
			ss.writer = bufio.NewWriter(tlsConn)
			ss.secure = true
		case strings.HasPrefix(verb, "AUTH") && s.opts.HideAuth:
			ss.reply("502 5.5.1 Command not implemented")
		case strings.HasPrefix(verb, "AUTH PLAIN"):
			s.auth(ss, strings.TrimSpace(line[len("AUTH PLAIN"):]))
		case line == "*":
			ss.reply("501 Authentication cancelled")
		case strings.HasPrefix(verb, "MAIL FROM:"):
			ss.from = extractPath(line)
			ss.to = nil
			ss.reply("250 OK")
		case strings.HasPrefix(verb, "RCPT TO:"):
			rcpt := extractPath(line)
			if s.refused(rcpt) {
				ss.reply("550 No such user")
				continue
			}
			ss.to = append(ss.to, rcpt)
			ss.reply("250 OK")
		case verb == "DATA":
			ss.reply("354 End data with <CR><LF>.<CR><LF>")
			data, err := readData(ss)
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, Message{From: ss.from, To: ss.to, Data: data})
			s.mu.Unlock()
			ss.reply("250 OK queued")
		case verb == "RSET":
			ss.from, ss.to = "", nil
			ss.reply("250 OK")
		case verb == "NOOP":
			ss.reply("250 OK")
		case verb == "QUIT":
			ss.reply("221 localhost closing connection")
			return
		default:
			ss.reply("500 Syntax error")
		}
	}
}

func (s *Server) auth(ss *session, initial string) {
	if !ss.secure {
		ss.reply("538 Encryption required")
		return
	}

	payload := initial
	if payload == "" {
		ss.reply("334 ")
		line, err := ss.readLine()
		if err != nil {
			return
		}
		payload = line
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		ss.reply("501 Malformed credentials")
		return
	}

	parts := strings.Split(string(decoded), "\x00")
	if len(parts) != 3 || parts[1] != s.opts.Username || parts[2] != s.opts.Password {
		ss.reply("535 5.7.8 Authentication credentials invalid")
		return
	}
	ss.reply("235 2.7.0 Authentication successful")
}

func (s *Server) record(line string) {
	if strings.HasPrefix(strings.ToUpper(line), "AUTH ") {
		line = "AUTH PLAIN ***"
	}
	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()
}

func (s *Server) refused(rcpt string) bool {
	for _, r := range s.opts.Refuse {
		if strings.EqualFold(r, rcpt) {
			return true
		}
	}
	return false
}

func readData(ss *session) (string, error) {
	var msg strings.Builder
	for {
		line, err := ss.readLine()
		if err != nil {
			return "", err
		}
		if line == "." {
			return msg.String(), nil
		}
		// Undo dot-stuffing.
		line = strings.TrimPrefix(line, ".")
		msg.WriteString(line)
		msg.WriteString("\r\n")
	}
}

func extractPath(line string) string {
	start := strings.Index(line, "<")
	end := strings.LastIndex(line, ">")
	if start < 0 || end < start {
		return ""
	}
	return line[start+1 : end]
}

func selfSignedCertificate() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "smtptest"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
