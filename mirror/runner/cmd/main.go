// Command pr-mirror copies a public pull request into a
// private mirror organization as a pair of branches (the
// base state and the PR state) and opens a pull request
// between them. The PR is identified by its web URL,
// given as an argument or read from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-json"

	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/config"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/git"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/host"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/host/github"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/host/gitlab"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/runner"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // CLI flag setup is inherently long
func run() error {
	const errCtx = "running pr-mirror"

	configPath := flag.String(
		"config", "",
		"Path to a YAML configuration file",
	)
	org := flag.String(
		"org", "",
		"Mirror organization (overrides config)",
	)
	hostKind := flag.String(
		"host-kind", "",
		"Hosting platform: github or gitlab "+
			"(overrides config)",
	)
	apiHost := flag.String(
		"api-host", "",
		"API base host for enterprise or self-hosted "+
			"instances (overrides config)",
	)
	gitHost := flag.String(
		"git-host", "",
		"Hostname for clone URLs (overrides config)",
	)
	scratchDir := flag.String(
		"scratch-dir", "",
		"Parent directory for scratch clones "+
			"(overrides config)",
	)
	useMergeParent := flag.Bool(
		"use-merge-parent", false,
		"For merged PRs, base the mirror on the merge "+
			"commit's first parent",
	)
	timeout := flag.Duration(
		"timeout", 0,
		"Overall run timeout, 0 disables",
	)
	jsonOut := flag.Bool(
		"json", false,
		"Print the run report as JSON on stdout",
	)
	verbose := flag.Bool(
		"verbose", false,
		"Enable debug logging",
	)

	flag.Parse()

	setupLogging(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	applyOverrides(&cfg, overrides{
		org:        *org,
		hostKind:   *hostKind,
		apiHost:    *apiHost,
		gitHost:    *gitHost,
		scratchDir: *scratchDir,
	})

	rawRef, err := prReference()
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	token, err := accessToken(cfg.HostKind)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	hub, err := newHost(cfg, token)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	ctx := context.Background()

	if *timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	rep, err := runner.Run(ctx, runner.Config{
		Host: hub,
		Materializer: &git.Materializer{
			GitHost:    cfg.GitHost,
			Org:        cfg.Org,
			Token:      token,
			ScratchDir: cfg.ScratchDir,
			BotName:    cfg.BotName,
			BotEmail:   cfg.BotEmail,
			StripDirs:  cfg.StripDirs,
		},
		Org:            cfg.Org,
		UseMergeParent: *useMergeParent,
	}, rawRef)

	if rep != nil && *jsonOut {
		if jsonErr := printReport(rep); jsonErr != nil {
			return fmt.Errorf(
				"%s: %w", errCtx, jsonErr,
			)
		}
	}

	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// setupLogging installs a text slog handler on stderr so
// stdout stays clean for the JSON report.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(
		slog.NewTextHandler(
			os.Stderr,
			&slog.HandlerOptions{Level: level},
		),
	))
}

// overrides bundles flag values that take precedence over
// the configuration file.
type overrides struct {
	org        string
	hostKind   string
	apiHost    string
	gitHost    string
	scratchDir string
}

func applyOverrides(cfg *config.Config, o overrides) {
	if o.org != "" {
		cfg.Org = o.org
	}

	if o.hostKind != "" {
		cfg.HostKind = o.hostKind
	}

	if o.apiHost != "" {
		cfg.APIHost = o.apiHost
	}

	if o.gitHost != "" {
		cfg.GitHost = o.gitHost
	}

	if o.scratchDir != "" {
		cfg.ScratchDir = o.scratchDir
	}
}

// prReference returns the PR URL from the first
// positional argument, or prompts for it on stdin.
func prReference() (string, error) {
	if flag.NArg() > 0 {
		return flag.Arg(0), nil
	}

	fmt.Fprint(
		os.Stderr, "Enter the URL of the PR to copy: ",
	)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf(
				"reading PR URL: %w", err,
			)
		}

		return "", fmt.Errorf(
			"reading PR URL: no input",
		)
	}

	return scanner.Text(), nil
}

// accessToken reads the API credential from the
// environment. The credential never comes from the
// configuration file.
func accessToken(hostKind string) (string, error) {
	envVar := "GITHUB_TOKEN"
	if hostKind == "gitlab" {
		envVar = "GITLAB_TOKEN"
	}

	token := os.Getenv(envVar)
	if token == "" {
		return "", fmt.Errorf(
			"environment variable %s must be set", envVar,
		)
	}

	return token, nil
}

// newHost creates a host.Host based on the configured
// platform. Pattern: Factory -- selects platform
// implementation at runtime.
func newHost(
	cfg config.Config,
	token string,
) (host.Host, error) {
	const errCtx = "creating host"

	switch cfg.HostKind {
	case "github":
		h, err := github.NewHub(github.Config{
			AccessToken:    token,
			Org:            cfg.Org,
			EnterpriseHost: cfg.APIHost,
		})
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return h, nil

	case "gitlab":
		h, err := gitlab.NewHub(gitlab.Config{
			AccessToken: token,
			Org:         cfg.Org,
			Host:        cfg.APIHost,
		})
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return h, nil

	default:
		return nil, fmt.Errorf(
			"%s: unknown host kind %q",
			errCtx, cfg.HostKind,
		)
	}
}

// printReport writes the run report as indented JSON on
// stdout.
func printReport(rep *runner.Report) error {
	raw, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf(
			"encoding report: %w", err,
		)
	}

	fmt.Println(string(raw))

	return nil
}
