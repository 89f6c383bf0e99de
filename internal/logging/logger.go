package logging

import (
	"log"
	"os"
)

var (
	Main    = log.New(os.Stdout, "[main] ", log.LstdFlags)
	HTTP    = log.New(os.Stdout, "[http] ", log.LstdFlags)
	Wallet  = log.New(os.Stdout, "[wallet] ", log.LstdFlags)
	Store   = log.New(os.Stdout, "[store] ", log.LstdFlags)
	Backup  = log.New(os.Stdout, "[backup] ", log.LstdFlags)
	Metrics = log.New(os.Stdout, "[metrics] ", log.LstdFlags)
)
