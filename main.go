package main

import (
	"log"

	"court-realtime/cmd"
	_ "court-realtime/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
