package main

import (
	"fmt"
	"os"

	"github.com/legit-games/grant-engine/migrate"
)

func main() {
	if err := migrate.Run(migrate.OptionsFromEnv()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrate completed successfully")
}
