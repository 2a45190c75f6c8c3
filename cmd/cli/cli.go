package cli

import (
	"fmt"
	"os"
)

// Execute runs the CLI with all commands
func Execute() {
	a := newApp(DefaultDependencies())
	rootCmd := a.rootCommand()
	rootCmd.SetVersionTemplate("sprout version {{.Version}}\n")

	err := rootCmd.Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
