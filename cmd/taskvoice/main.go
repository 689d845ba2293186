package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
)

var version = "dev"

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	// A missing .env is normal in deployments that set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(stderr, "taskvoice: load .env: %v\n", err)
		return 1
	}

	root := newRootCmd(deps)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "taskvoice: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultAppDeps()))
}
