package main

import (
	log "github.com/sirupsen/logrus"

	ddprofiler "github.com/suhailshergill/aurum-datadiscovery"
)

func main() {
	driver, err := ddprofiler.NewDriver()
	if err != nil {
		log.Fatalf("Invalid configuration: %s", err)
	}
	driver.Main()
}
