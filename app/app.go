package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/infrastructure/config"
	infrastructuredatabase "github.com/pointdag/pointdagd/infrastructure/db/database"
	"github.com/pointdag/pointdagd/infrastructure/db/database/ldb"
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/infrastructure/os/execenv"
	"github.com/pointdag/pointdagd/infrastructure/os/signal"
	"github.com/pointdag/pointdagd/util/panics"
	"github.com/pointdag/pointdagd/util/profiling"
	"github.com/pointdag/pointdagd/version"
)

const leveldbCacheSizeMiB = 256

type pointdagdApp struct {
	cfg *config.Config
}

// StartApp starts the pointdagd app, and blocks until it finishes running
func StartApp() error {
	execenv.Initialize()

	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	err = initLog(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logger.BackendLog.Close()
	defer panics.HandlePanic(log, "MAIN", nil)

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		profiling.Start(cfg.Profile, log)
	}

	app := &pointdagdApp{cfg: cfg}
	return app.main(nil)
}

func initLog(cfg *config.Config) error {
	if cfg.LogLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}
	logger.InitLog(cfg.LogFile(), cfg.ErrLogFile())
	return logger.ParseAndSetLogLevels(cfg.LogLevel)
}

func (app *pointdagdApp) main(startedChan chan<- struct{}) error {
	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as a stopped flow.
	interrupt := signal.InterruptListener()
	defer log.Infof("Shutdown complete")

	// Show version at startup.
	log.Infof("Version %s", version.Version())
	log.Infof("Local peer %s, %d scheduled peers", app.cfg.KeyPair.PeerID(), len(app.cfg.Consensus.Weights))

	// Return now if an interrupt signal was triggered.
	if signal.InterruptRequested(interrupt) {
		return nil
	}

	databaseContext, err := openDB(app.cfg)
	if err != nil {
		log.Errorf("Loading database failed: %+v", err)
		return err
	}
	if databaseContext != nil {
		defer func() {
			log.Infof("Gracefully shutting down the database...")
			err := databaseContext.Close()
			if err != nil {
				log.Errorf("Failed to close the database: %s", err)
			}
		}()
	}

	// Create componentManager and start it.
	componentManager, err := NewComponentManager(app.cfg, databaseContext)
	if err != nil {
		log.Errorf("Unable to start pointdagd: %+v", err)
		return err
	}

	defer func() {
		log.Infof("Gracefully shutting down pointdagd...")
		componentManager.Stop()
	}()

	componentManager.Start()
	spawn("pointdagdApp.consumeCommittedAnchors", func() {
		consumeCommittedAnchors(componentManager.CommittedAnchors(), interrupt)
	})

	if startedChan != nil {
		startedChan <- struct{}{}
	}

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems such as the
	// protocol flows.
	<-interrupt
	return nil
}

// consumeCommittedAnchors reads the committed anchors until done is closed.
func consumeCommittedAnchors(committedAnchors <-chan *externalapi.CommittedAnchor, done <-chan struct{}) {
	for {
		select {
		case anchor := <-committedAnchors:
			log.Debugf("Anchor %s ordered %d points, history hash %s",
				anchor.Anchor.ID(), len(anchor.History), anchor.HistoryHash)
		case <-done:
			return
		}
	}
}

// databasePath returns the path of the DAG database.
func databasePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir(), "db")
}

// openDB opens the DAG database, or returns nil when the DAG is kept in
// memory only.
func openDB(cfg *config.Config) (infrastructuredatabase.Database, error) {
	if cfg.NoDB {
		log.Infof("Keeping the DAG in memory only")
		return nil, nil
	}

	dbPath := databasePath(cfg)
	err := os.MkdirAll(dbPath, 0700)
	if err != nil {
		return nil, err
	}

	err = checkDatabaseVersion(dbPath)
	if err != nil {
		return nil, err
	}

	log.Infof("Loading database from '%s'", dbPath)
	db, err := ldb.NewLevelDB(dbPath, leveldbCacheSizeMiB)
	if err != nil {
		return nil, err
	}
	return db, nil
}
