package monitor

import (
	"time"

	"github.com/fleetmon/fleetmon/pkg/sshutil"
)

// AuthMode is how a server expects to be authenticated.
type AuthMode string

const (
	AuthKey      AuthMode = "key"
	AuthPassword AuthMode = "password"
)

// JumpHost is a bastion the connection is tunnelled through.
type JumpHost struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user,omitempty"`
}

// Server is the static definition of one monitored host.
type Server struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	User     string        `json:"user"`
	Auth     AuthMode      `json:"auth"`
	KeyPath  string        `json:"key_path,omitempty"`
	Jump     *JumpHost     `json:"jump,omitempty"`
	Interval time.Duration `json:"interval"`

	// Local servers are this machine, collected without SSH.
	Local bool `json:"local,omitempty"`
}

// Target builds the dial target for s. password is offered after any keys.
func (s Server) Target(password string) sshutil.Target {
	t := sshutil.Target{
		Alias:        s.ID,
		Hostname:     s.Host,
		Port:         s.Port,
		User:         s.User,
		IdentityFile: s.KeyPath,
		UseKeys:      s.Auth != AuthPassword,
		Password:     password,
	}
	if s.Jump != nil {
		jump := sshutil.Target{
			Alias:    s.Jump.Host,
			Hostname: s.Jump.Host,
			Port:     s.Jump.Port,
			User:     s.Jump.User,
			UseKeys:  true,
		}
		if jump.User == "" {
			jump.User = s.User
		}
		t.Jump = &jump
	}
	return t
}

// StatusKind is the connectivity state of a server.
type StatusKind string

const (
	StatusDisconnected StatusKind = "disconnected"
	StatusConnecting   StatusKind = "connecting"
	StatusOnline       StatusKind = "online"
	StatusOffline      StatusKind = "offline"
	StatusError        StatusKind = "error"
)

// Status is a StatusKind plus the message carried by StatusError.
type Status struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message,omitempty"`
}

// ErrorStatus returns an Error status carrying msg.
func ErrorStatus(msg string) Status {
	return Status{Kind: StatusError, Message: msg}
}

func (s Status) String() string {
	if s.Kind == StatusError && s.Message != "" {
		return "error: " + s.Message
	}
	return string(s.Kind)
}

// PendingSecret is an outstanding request for a server's password.
type PendingSecret struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// ServerView is a point-in-time copy of a server's definition and state.
type ServerView struct {
	Server

	Status           Status         `json:"status"`
	LastSeen         *time.Time     `json:"last_seen,omitempty"`
	LastAttempt      *time.Time     `json:"last_attempt,omitempty"`
	NextMonitoring   time.Time      `json:"next_monitoring"`
	RetryCount       int            `json:"retry_count"`
	NeedsCredentials bool           `json:"needs_credentials"`
	NeedsManualRetry bool           `json:"needs_manual_retry"`
	PendingSecret    *PendingSecret `json:"pending_secret,omitempty"`
	HasSecret        bool           `json:"has_secret"`
	Paused           bool           `json:"paused"`
	Suspended        bool           `json:"suspended"`
	InFlight         bool           `json:"in_flight"`
	Connected        bool           `json:"connected"`
}
