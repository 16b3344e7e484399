package middleware

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"rentsync/internal/app/commands"
)

// ErrMutationInFlight is returned to a command that arrives while a different
// command holds the same in-flight key.
var ErrMutationInFlight = errors.New("middleware: another mutation in flight")

// ExclusiveCommand is implemented by commands that must not run concurrently
// with any other command sharing their InFlightKey. A second dispatch of the
// same command shares the first one's result and error.
type ExclusiveCommand interface {
	commands.Command
	InFlightKey() string
}

type flight struct {
	owner string
	res   any
}

// SingleFlight allows one call to next per in-flight key. Joiners with the
// same command key get the shared outcome; joiners with another command key
// get ErrMutationInFlight once the running call ends. Other commands pass
// through.
func SingleFlight() CommandMiddleware {
	var group singleflight.Group
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			exCmd, ok := cmd.(ExclusiveCommand)
			if !ok {
				return nextFn(ctx, cmd)
			}
			key := exCmd.InFlightKey()
			if key == "" {
				return nextFn(ctx, cmd)
			}
			v, err, _ := group.Do(key, func() (any, error) {
				res, err := nextFn(context.WithoutCancel(ctx), cmd)
				return flight{owner: cmd.Key(), res: res}, err
			})
			f, _ := v.(flight)
			if f.owner != "" && f.owner != cmd.Key() {
				return nil, fmt.Errorf("%w: %s holds %s", ErrMutationInFlight, f.owner, key)
			}
			if err != nil {
				return nil, err
			}
			return f.res, nil
		})
	}
}
