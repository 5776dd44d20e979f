package startup

import (
	"github.com/pgtide/pgtide/wire/conn"
)

// Terminate is the session farewell. Fire and forget: the backend closes
// the socket after receiving it, so no response is expected.
type Terminate struct{}

func (Terminate) String() string { return "terminate" }

func (Terminate) RequiresResponse() bool { return false }

func (Terminate) Blocking() bool { return false }

func (Terminate) Write(ctx conn.WriteContext) error {
	return writeTagged(ctx, 'X', nil)
}

func (Terminate) Read(conn.ReadContext) (conn.Action, error) {
	return nil, nil
}

func (Terminate) HandleError(error) {}
