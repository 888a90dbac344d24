package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"
)

var errRestrictionIDArgRequired = errors.New("restriction id argument required")

func cmdRestrict(a *App) *Command {
	flags := flag.NewFlagSet("restrict", flag.ContinueOnError)
	user := flags.StringP("user", "u", "", "Blocking user id (required, must be assigned to the blocking task)")

	return &Command{
		Flags: flags,
		Usage: "restrict <waiting-id> <blocking-id> -u <user>",
		Short: "Make one task wait on another",
		Long: `Create a restriction: the waiting task cannot start until the blocking
task releases it. The blocking user owns the restriction and must be one
of the blocking task's assignees. Edges that would create a dependency
cycle are rejected.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 2 {
				return errors.New("expected <waiting-id> <blocking-id>")
			}

			restriction, err := a.Engine.CreateRestriction(ctx, args[0], args[1], *user)
			if err != nil {
				return err
			}

			o.Println(restriction.ID)

			return nil
		},
	}
}

func cmdResolve(a *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("resolve", flag.ContinueOnError),
		Usage: "resolve <restriction-id>",
		Short: "Resolve a restriction (dependency satisfied)",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errRestrictionIDArgRequired
			}

			err := a.Engine.ResolveRestriction(ctx, args[0])
			if err != nil {
				return err
			}

			o.Println(args[0], "resolved")

			return nil
		},
	}
}

func cmdCancel(a *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("cancel", flag.ContinueOnError),
		Usage: "cancel <restriction-id>",
		Short: "Cancel a restriction (created in error)",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errRestrictionIDArgRequired
			}

			err := a.Engine.CancelRestriction(ctx, args[0])
			if err != nil {
				return err
			}

			o.Println(args[0], "cancelled")

			return nil
		},
	}
}
