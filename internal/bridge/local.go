package bridge

import "context"

// Local hands commands to an in-process dispatcher.
type Local struct {
	dispatcher Dispatcher
}

func NewLocal(dispatcher Dispatcher) *Local {
	return &Local{dispatcher: dispatcher}
}

func (l *Local) Send(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	return l.dispatcher.Dispatch(ctx, cmd)
}
