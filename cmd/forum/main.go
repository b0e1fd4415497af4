// Command forum is a terminal and local-web client for the music forum
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/renderinc/forumsync/internal/guard"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "forum"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(report(err))
	}
}

// report prints err for the user and returns the exit code
func report(err error) int {
	if _, ok := guard.New(nil, guard.DefaultLoginPath).RedirectFor(err); ok {
		fmt.Fprintf(os.Stderr, "login required: run `%s login`\n", appName)
		return 1
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
