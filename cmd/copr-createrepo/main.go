package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/copr-farm/copr/pkg/client"
	"github.com/copr-farm/copr/pkg/createrepo"
	"github.com/copr-farm/copr/pkg/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("copr-createrepo", flag.ContinueOnError)
	user := fs.String("u", "", "project owner")
	project := fs.String("p", "", "project name")
	apiURL := fs.String("a", "", "frontend API url")
	minFree := fs.Uint64("min-free", createrepo.DefaultMinFreeBytes, "minimum free bytes on the repository filesystem")
	timeout := fs.Duration("timeout", 30*time.Minute, "createrepo_c timeout")
	logLevel := fs.String("log-level", "info", "log level")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: copr-createrepo -u USER -p PROJECT -a API_URL REPO_DIR")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	switch {
	case *user == "":
		fmt.Fprintln(os.Stderr, "No user was specified, exiting")
		return 1
	case *project == "":
		fmt.Fprintln(os.Stderr, "No project was specified, exiting")
		return 1
	case *apiURL == "":
		fmt.Fprintln(os.Stderr, "No api url was specified, exiting")
		return 1
	case fs.NArg() < 1:
		fmt.Fprintln(os.Stderr, "No directory with repo was specified, exiting")
		return 1
	}

	logger := logging.NewLogger(logging.ParseLevel(*logLevel), false)
	logger.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	creator := createrepo.NewCreator(client.NewClient(*apiURL, client.WithTimeout(time.Minute)), logger)
	creator.SetMinFreeBytes(*minFree)

	res, err := creator.Run(ctx, createrepo.Options{
		Owner:   *user,
		Project: *project,
		RepoDir: fs.Arg(0),
	})
	if err != nil {
		logger.Error("Repository metadata not updated", logging.Fields{"error": err.Error(), "repo": fs.Arg(0)})
		return 1
	}
	fmt.Print(res.Output)
	return 0
}
