// Command cleanupd runs the session cleanup worker as a standalone daemon:
// it drains the rotation cleanup queue and sweeps expired sessions until
// stopped.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/khentdev/FitThreads-sub000/cleanup"
	"github.com/khentdev/FitThreads-sub000/internal/config"
	"github.com/khentdev/FitThreads-sub000/sessions/postgres"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running cleanupd: %s\n", err)
	}
	log.Printf("cleanupd stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName() + " cleanupd")

	db, err := sql.Open("pgx", c.GetDatabaseDSN())
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("postgres.RunMigrations: %w", err)
	}

	worker, err := cleanup.NewWorker(postgres.New(db),
		cleanup.WithInterval(c.GetCleanupInterval()),
		cleanup.WithBatchSize(c.GetCleanupBatchSize()),
	)
	if err != nil {
		return fmt.Errorf("cleanup.NewWorker: %w", err)
	}

	worker.Start()
	log.Printf("cleanup worker started (interval %s)\n", c.GetCleanupInterval())
	waitForStopSignal()

	stopped := make(chan struct{})
	go func() {
		worker.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(30 * time.Second):
		return errors.New("cleanup worker did not stop in time")
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
