package demo

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Version is reported by Service.Version.
const Version = "1.0.0"

var ErrDivideByZero = errors.New("division by zero")

// Server implements Service.
type Server struct {
	logger *zap.Logger

	mu     sync.Mutex
	events []string
	notify chan string
}

var _ Service = (*Server)(nil)

func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger: logger,
		notify: make(chan string, 16),
	}
}

func (s *Server) Add(a, b int) int {
	return a + b
}

func (s *Server) Divide(dividend, divisor int, remainder *int) (int, error) {
	if divisor == 0 {
		return 0, ErrDivideByZero
	}
	*remainder = dividend % divisor
	return dividend / divisor, nil
}

func (s *Server) Echo(message string) string {
	return message
}

func (s *Server) Notify(event string) {
	s.logger.Info("notified", zap.String("event", event))

	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()

	select {
	case s.notify <- event:
	default:
	}
}

// Notifications delivers events passed to Notify, dropping them when full.
func (s *Server) Notifications() <-chan string {
	return s.notify
}

// Events returns the events received so far.
func (s *Server) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *Server) Programmers() []User {
	return []User{
		{Name: "ada", Languages: []string{"ada", "go"}, Rating: 10},
		{Name: "bob", Languages: []string{"basic"}, Rating: 3},
		{Name: "grace", Languages: []string{"cobol", "go"}, Rating: 9},
	}
}

// GoodProgrammers keeps users rated 5 or more.
func (s *Server) GoodProgrammers(users []User) []User {
	good := []User{}
	for _, u := range users {
		if u.Rating >= 5 {
			good = append(good, u)
		}
	}
	return good
}

func (s *Server) SetFileToPath(path string, content []byte) bool {
	if path == "" {
		return false
	}
	logger := s.logger.With(zap.String("path", path))

	if content == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Error("delete failed", zap.Error(err))
			return false
		}
		return true
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Error("create directory failed", zap.Error(err))
		return false
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		logger.Error("write failed", zap.Error(err))
		return false
	}
	logger.Debug("file written", zap.Int("bytes", len(content)))
	return true
}

func (s *Server) Version() string {
	return Version
}
