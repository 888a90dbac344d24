// Package main provides tg-seed, a tool to fill a tg database with
// realistic demo data: a pool of users, a batch of tasks in mixed states and
// a sprinkling of restrictions between them.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/taskgate/taskgate/internal/engine"
	"github.com/taskgate/taskgate/internal/feed"
	"github.com/taskgate/taskgate/internal/model"
	"github.com/taskgate/taskgate/internal/store"
)

func main() {
	dbPath := flag.String("db", "taskgate.db", "database file to seed")
	taskCount := flag.Int("tasks", 200, "number of tasks to create")
	userCount := flag.Int("users", 8, "number of distinct users")
	edgeCount := flag.Int("restrictions", 60, "number of restrictions to attempt")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	start := time.Now()

	created, edges, err := run(*dbPath, *taskCount, *userCount, *edgeCount, *seed)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded %d tasks and %d restrictions in %s -> %s\n",
		created, edges, time.Since(start), *dbPath)
}

func run(dbPath string, taskCount, userCount, edgeCount int, seed int64) (int, int, error) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(seed))

	events := feed.New()

	st, err := store.Open(ctx, dbPath, events)
	if err != nil {
		return 0, 0, err
	}

	defer func() { _ = st.Close() }()

	eng, err := engine.New(ctx, st, nil)
	if err != nil {
		return 0, 0, err
	}

	defer func() { _ = eng.Close() }()

	users := make([]string, userCount)
	for i := range users {
		users[i] = fmt.Sprintf("user-%02d", i+1)
	}

	statuses := []string{
		model.StatusPending,
		model.StatusPending,
		model.StatusInProgress,
		model.StatusStalled,
		model.StatusOnHold,
	}

	tasks := make([]model.Task, 0, taskCount)

	for i := 1; i <= taskCount; i++ {
		task := model.Task{
			Title:     fmt.Sprintf("Task %d: %s", i, sampleTitle(rng)),
			Status:    statuses[rng.Intn(len(statuses))],
			Assignees: pickUsers(rng, users),
			ProjectID: fmt.Sprintf("proj-%d", rng.Intn(5)+1),
		}

		if rng.Intn(3) == 0 {
			due := time.Now().UTC().AddDate(0, 0, rng.Intn(14)+1).Truncate(24 * time.Hour)
			task.DueDate = &due
		}

		saved, putErr := st.PutTask(ctx, task)
		if putErr != nil {
			return 0, 0, putErrFor(i, putErr)
		}

		tasks = append(tasks, saved)
	}

	if err := eng.Refresh(ctx); err != nil {
		return 0, 0, err
	}

	// Restrictions go through the engine so cycles and ownership rules hold
	// for seeded data too. Attempts that trip validation are simply skipped.
	edges := 0

	for i := 0; i < edgeCount; i++ {
		waiting := tasks[rng.Intn(len(tasks))]
		blocking := tasks[rng.Intn(len(tasks))]

		if waiting.ID == blocking.ID || len(blocking.Assignees) == 0 {
			continue
		}

		owner := blocking.Assignees[rng.Intn(len(blocking.Assignees))]

		_, createErr := eng.CreateRestriction(ctx, waiting.ID, blocking.ID, owner)
		if createErr != nil {
			continue
		}

		edges++
	}

	return len(tasks), edges, nil
}

func putErrFor(i int, err error) error {
	return fmt.Errorf("seeding task %d: %w", i, err)
}

func pickUsers(rng *rand.Rand, users []string) []string {
	count := rng.Intn(2) + 1

	picked := make([]string, 0, count)
	seen := make(map[string]struct{}, count)

	for len(picked) < count {
		user := users[rng.Intn(len(users))]
		if _, ok := seen[user]; ok {
			continue
		}

		seen[user] = struct{}{}
		picked = append(picked, user)
	}

	return picked
}

func sampleTitle(rng *rand.Rand) string {
	verbs := []string{"Ship", "Review", "Migrate", "Refactor", "Document", "Deploy", "Test"}
	nouns := []string{"payout report", "auth flow", "billing schema", "search index", "release notes", "import pipeline"}

	return verbs[rng.Intn(len(verbs))] + " " + nouns[rng.Intn(len(nouns))]
}
