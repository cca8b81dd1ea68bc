package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/services/logger"
	"github.com/trezcool/trafikkvakt/storage"
	"github.com/trezcool/trafikkvakt/storage/backend"
	"github.com/trezcool/trafikkvakt/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	cli := commandLine{conf: conf, out: os.Stdout}
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "seed":
			storeLogger := logsvc.NewRollbarLogger(logger, conf)
			storeLogger.Enable(false)
			store, err := backend.Open(context.Background(), conf, storeLogger)
			errAndDie(err)
			defer store.Close()
			cli.repo = storage.NewDutyRepository(store.Table)
		case "migrate":
			if conf.Storage.Backend == core.StorageDatabase {
				db, err := database.Open(conf.Database)
				errAndDie(err)
				defer db.Close()
				cli.db = db
			}
		}
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
