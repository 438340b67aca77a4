package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ryanmaclean/tundra/internal/domain"
	"github.com/ryanmaclean/tundra/internal/tui"
)

var (
	runTitle       string
	runDescription string
	runRoot        string
	runConvoy      string
	runStatus      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single task through the discovery-through-merge pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runTitle == "" {
			return errors.New("tundra run: a --title is required")
		}

		dep, err := newDeployment(runRoot)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		defer dep.Close(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Println("tundra: received signal, stopping")
			cancel()
		}()

		now := time.Now()
		bead := &domain.Bead{
			ID:        uuid.NewString(),
			Title:     runTitle,
			Lane:      domain.LaneStandard,
			Status:    domain.BeadBacklog,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if runConvoy != "" {
			convoy := &domain.Convoy{
				ID:        uuid.NewString(),
				Name:      runConvoy,
				Status:    "active",
				BeadIDs:   []string{bead.ID},
				CreatedAt: now,
				UpdatedAt: now,
			}
			bead.ConvoyID = convoy.ID
			dep.store.PutConvoy(convoy)
		}
		dep.store.PutBead(bead)

		task := &domain.Task{
			ID:          uuid.NewString(),
			BeadID:      bead.ID,
			Title:       runTitle,
			Description: runDescription,
			Phase:       domain.PhaseDiscovery,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		dep.store.Put(task)

		stop := make(chan struct{})
		dep.store.StartSweeper(stop)
		defer close(stop)

		if runStatus {
			go func() {
				if err := tui.Run(dep.bus, snapshotFunc(dep)); err != nil {
					log.Printf("tundra: status dashboard exited: %v", err)
				}
			}()
		}

		bead.SetStatus(domain.BeadHooked, time.Now())
		bead.SetStatus(domain.BeadSlung, time.Now())

		runErr := dep.runner.RunTask(ctx, task, dep.workflow)
		bead.SetStatus(domain.BeadReview, time.Now())
		if runErr != nil {
			bead.SetStatus(domain.BeadFailed, time.Now())
			return runErr
		}
		bead.SetStatus(domain.BeadDone, time.Now())

		if bead.ConvoyID != "" {
			percent, tasks := dep.store.ConvoyProgress(bead.ConvoyID)
			log.Printf("tundra: convoy %s at %d%% across %d task(s)", runConvoy, percent, tasks)
		}
		in, out := dep.store.TokenTotals(task.ID)
		log.Printf("tundra: task %s completed in phase %s (%d in / %d out tokens)", task.ID, task.Phase, in, out)
		return nil
	},
}

// snapshotFunc adapts the deployment's task store into the dashboard's
// snapshot callback, folding in per-task token totals.
func snapshotFunc(dep *deployment) func() []tui.TaskSnapshot {
	return func() []tui.TaskSnapshot {
		tasks := dep.store.All()
		snap := make([]tui.TaskSnapshot, len(tasks))
		for i, t := range tasks {
			in, out := dep.store.TokenTotals(t.ID)
			snap[i] = tui.TaskSnapshot{
				ID: t.ID, Title: t.Title, Phase: t.Phase, Progress: t.Progress,
				InputTokens: in, OutputTokens: out, CreatedAt: t.CreatedAt,
			}
		}
		return snap
	}
}

func init() {
	runCmd.Flags().StringVar(&runTitle, "title", "", "task title")
	runCmd.Flags().StringVar(&runDescription, "description", "", "task description")
	runCmd.Flags().StringVar(&runRoot, "root", ".", "project root for context steering")
	runCmd.Flags().StringVar(&runConvoy, "convoy", "", "name of a convoy to group this task's bead under")
	runCmd.Flags().BoolVar(&runStatus, "status", false, "show the live status dashboard alongside the run")
	rootCmd.AddCommand(runCmd)
}
