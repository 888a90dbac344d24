package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/taskgate/taskgate/internal/notify"
)

var errUserFlagRequired = errors.New("--user is required")

// severityColors maps each severity tier to its terminal rendering.
var severityColors = map[notify.Severity]*color.Color{
	notify.SeverityCritical: color.New(color.FgRed, color.Bold),
	notify.SeverityHigh:     color.New(color.FgYellow, color.Bold),
	notify.SeverityMedium:   color.New(color.FgCyan),
	notify.SeverityLow:      color.New(color.FgWhite),
}

func cmdAvailable(a *App) *Command {
	flags := flag.NewFlagSet("available", flag.ContinueOnError)
	user := flags.StringP("user", "u", "", "User id (required)")

	return &Command{
		Flags: flags,
		Usage: "available -u <user>",
		Short: "List the user's startable tasks, most urgent first",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			if *user == "" {
				return errUserFlagRequired
			}

			for _, task := range a.Engine.AvailableTasksFor(*user) {
				o.Println(a.formatTaskLine(task))
			}

			return nil
		},
	}
}

func cmdBlocked(a *App) *Command {
	flags := flag.NewFlagSet("blocked", flag.ContinueOnError)
	user := flags.StringP("user", "u", "", "User id (required)")

	return &Command{
		Flags: flags,
		Usage: "blocked -u <user>",
		Short: "List the user's blocked tasks, most urgent first",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			if *user == "" {
				return errUserFlagRequired
			}

			for _, task := range a.Engine.BlockedTasksFor(*user) {
				o.Println(a.formatTaskLine(task))
			}

			return nil
		},
	}
}

func cmdNotifications(a *App) *Command {
	flags := flag.NewFlagSet("notifications", flag.ContinueOnError)
	user := flags.StringP("user", "u", "", "User id (required)")
	plain := flags.Bool("plain", false, "Disable colored output")

	return &Command{
		Flags: flags,
		Usage: "notifications -u <user>",
		Short: "Show the user's current notifications by severity",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			if *user == "" {
				return errUserFlagRequired
			}

			for _, n := range a.Engine.NotificationsFor(*user) {
				label := fmt.Sprintf("[%s]", n.Severity)
				if !*plain {
					label = severityColors[n.Severity].Sprint(label)
				}

				line := fmt.Sprintf("%s %s: %s", label, n.Category, n.Message)
				if n.Category == notify.CategoryBlockingOthers {
					line += fmt.Sprintf(" (affects %d)", n.AffectedUsers)
				}

				o.Println(line)
			}

			return nil
		},
	}
}

func cmdMetrics(a *App) *Command {
	flags := flag.NewFlagSet("metrics", flag.ContinueOnError)
	user := flags.StringP("user", "u", "", "User id")
	all := flags.Bool("all", false, "Show metrics for every known user")

	return &Command{
		Flags: flags,
		Usage: "metrics [-u <user> | --all]",
		Short: "Show dashboard counts",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			if *all {
				byUser := a.Engine.MetricsForAll()

				users := make([]string, 0, len(byUser))
				for id := range byUser {
					users = append(users, id)
				}

				slices.Sort(users)

				for _, id := range users {
					o.Println(formatMetricsLine(byUser[id].UserID, byUser[id].AvailableCount,
						byUser[id].BlockedCount, byUser[id].TeamImpact))
				}

				return nil
			}

			if *user == "" {
				return errUserFlagRequired
			}

			m := a.Engine.MetricsFor(*user)
			o.Println(formatMetricsLine(m.UserID, m.AvailableCount, m.BlockedCount, m.TeamImpact))

			return nil
		},
	}
}

func formatMetricsLine(userID string, available, blocked, impact int) string {
	return fmt.Sprintf("%s: available=%d blocked=%d team-impact=%d",
		userID, available, blocked, impact)
}
