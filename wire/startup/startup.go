// Package startup implements the connection handshake as network actions:
// the StartupMessage, the cleartext password answer, and the Terminate
// farewell. The startup action is blocking and chains itself as its own
// continuation, consuming authentication, parameter-status, backend-key and
// ready-for-query frames until the session is usable.
//
// Authentication beyond cleartext password is not negotiated here.
package startup

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pgtide/pgtide/wire/conn"
	"github.com/pgtide/pgtide/wire/frame"
)

// protocolVersion is wire protocol 3.0.
const protocolVersion = 196608

// Authentication request codes the handshake understands.
const (
	authOK        = 0
	authCleartext = 3
)

// Handshake is the connect initiator. It produces the startup action and
// collects what the backend reports during the exchange.
type Handshake struct {
	mu         sync.Mutex
	params     map[string]string
	backendPID uint32
	secretKey  uint32

	once sync.Once
	done chan error
}

// NewHandshake creates a fresh connect initiator. Each connection attempt
// needs its own instance.
func NewHandshake() *Handshake {
	return &Handshake{
		params: make(map[string]string),
		done:   make(chan error, 1),
	}
}

// Done delivers the outcome of the handshake exactly once.
func (h *Handshake) Done() <-chan error { return h.done }

// ServerParameters returns the ParameterStatus pairs reported by the
// backend. Valid after Done has delivered nil.
func (h *Handshake) ServerParameters() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.params))
	for k, v := range h.params {
		out[k] = v
	}
	return out
}

// BackendKey returns the process id and secret key for cancel requests.
func (h *Handshake) BackendKey() (pid, key uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backendPID, h.secretKey
}

// --------------------------------------------------------------------------
// Interface Methods (docu see conn.Connector)
// --------------------------------------------------------------------------

func (h *Handshake) Connect(ctx conn.ConnectContext) error {
	cfg := ctx.Config()
	if cfg.User == "" {
		return fmt.Errorf("startup: user is required")
	}
	return nil
}

func (h *Handshake) FinishConnect(ctx conn.ConnectContext) (conn.Action, error) {
	return &startupAction{h: h}, nil
}

func (h *Handshake) HandleError(err error) {
	h.complete(err)
}

// complete delivers the handshake outcome once; later signals are dropped.
func (h *Handshake) complete(err error) {
	h.once.Do(func() { h.done <- err })
}

// --------------------------------------------------------------------------
// Startup action
// --------------------------------------------------------------------------

// startupAction sends the StartupMessage and consumes backend frames until
// ReadyForQuery. It is blocking: nothing queued behind it is sent until the
// handshake outcome is known.
type startupAction struct {
	h *Handshake
}

func (a *startupAction) String() string { return "startup" }

func (a *startupAction) RequiresResponse() bool { return true }

func (a *startupAction) Blocking() bool { return true }

func (a *startupAction) Write(ctx conn.WriteContext) error {
	cfg := ctx.Config()

	var body []byte
	body = binary.BigEndian.AppendUint32(body, protocolVersion)
	body = appendCString(body, "user")
	body = appendCString(body, cfg.User)
	if cfg.Database != "" {
		body = appendCString(body, "database")
		body = appendCString(body, cfg.Database)
	}
	if cfg.ApplicationName != "" {
		body = appendCString(body, "application_name")
		body = appendCString(body, cfg.ApplicationName)
	}
	body = append(body, 0)

	// the startup message is the one frontend message without a tag
	msg := binary.BigEndian.AppendUint32(nil, uint32(len(body)+4))
	msg = append(msg, body...)
	_, err := ctx.Output().Write(msg)
	return err
}

func (a *startupAction) Read(ctx conn.ReadContext) (conn.Action, error) {
	f := ctx.Frame()

	switch f.Tag {
	case frame.TagAuthentication:
		if len(f.Payload) < 4 {
			return nil, fmt.Errorf("startup: truncated authentication frame")
		}
		switch code := binary.BigEndian.Uint32(f.Payload[:4]); code {
		case authOK:
			return a, nil
		case authCleartext:
			if err := ctx.Enqueue(&passwordAction{h: a.h, password: ctx.Config().Password}); err != nil {
				return nil, err
			}
			return a, nil
		default:
			return nil, fmt.Errorf("startup: unsupported authentication request %d", code)
		}

	case frame.TagParameterStatus:
		name, rest := readCString(f.Payload)
		value, _ := readCString(rest)
		a.h.mu.Lock()
		a.h.params[name] = value
		a.h.mu.Unlock()
		return a, nil

	case frame.TagBackendKeyData:
		if len(f.Payload) >= 8 {
			a.h.mu.Lock()
			a.h.backendPID = binary.BigEndian.Uint32(f.Payload[:4])
			a.h.secretKey = binary.BigEndian.Uint32(f.Payload[4:8])
			a.h.mu.Unlock()
		}
		return a, nil

	case frame.TagErrorResponse:
		a.h.complete(fmt.Errorf("startup: backend rejected connection: %s", errorMessage(f.Payload)))
		return nil, nil

	case frame.TagNoticeResponse:
		return a, nil

	case frame.TagReadyForQuery:
		a.h.complete(nil)
		return nil, nil

	default:
		// something harmless we do not interpret; keep consuming
		return a, nil
	}
}

func (a *startupAction) HandleError(err error) {
	a.h.complete(err)
}

// --------------------------------------------------------------------------
// Password action
// --------------------------------------------------------------------------

// passwordAction answers a cleartext password challenge. It is write-only:
// the subsequent authentication frames go to the startup continuation.
type passwordAction struct {
	h        *Handshake
	password string
}

func (a *passwordAction) String() string { return "password" }

func (a *passwordAction) RequiresResponse() bool { return false }

func (a *passwordAction) Blocking() bool { return false }

func (a *passwordAction) Write(ctx conn.WriteContext) error {
	return writeTagged(ctx, 'p', appendCString(nil, a.password))
}

func (a *passwordAction) Read(conn.ReadContext) (conn.Action, error) {
	return nil, nil
}

func (a *passwordAction) HandleError(err error) {
	a.h.complete(err)
}

// --------------------------------------------------------------------------
// Encoding helpers
// --------------------------------------------------------------------------

// writeTagged serializes one tagged frontend message into the output stream.
func writeTagged(ctx conn.WriteContext, tag byte, body []byte) error {
	msg := make([]byte, 0, len(body)+5)
	msg = append(msg, tag)
	msg = binary.BigEndian.AppendUint32(msg, uint32(len(body)+4))
	msg = append(msg, body...)
	_, err := ctx.Output().Write(msg)
	return err
}

func appendCString(b []byte, s string) []byte {
	b = append(b, s...)
	return append(b, 0)
}

// readCString splits one NUL-terminated string off the payload.
func readCString(b []byte) (string, []byte) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), b[i+1:]
		}
	}
	return string(b), nil
}

// errorMessage extracts the human-readable message ('M' field) from an
// ErrorResponse payload, falling back to the raw field list.
func errorMessage(payload []byte) string {
	rest := payload
	for len(rest) > 0 && rest[0] != 0 {
		key := rest[0]
		value, tail := readCString(rest[1:])
		if key == 'M' {
			return value
		}
		rest = tail
	}
	return fmt.Sprintf("%q", payload)
}
