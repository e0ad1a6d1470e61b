// Command storylab generates one story from the terminal. It runs the same
// pipeline as the API in-process and renders its progress events live.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"storymaker/internal/bootstrap"
	"storymaker/internal/catalog"
	"storymaker/internal/domain"
	"storymaker/internal/infra"
	"storymaker/internal/middleware"
	"storymaker/internal/pipeline"
	"storymaker/internal/tui"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		namesFlag   string
		photosFlag  string
		universe    string
		style       string
		description string
		locale      string
		logFile     string
	)
	flag.StringVar(&namesFlag, "names", "", "comma separated character names")
	flag.StringVar(&photosFlag, "photos", "", "folder with character photos (files named after the character)")
	flag.StringVar(&universe, "universe", "fantasy", "universe preset id or free-form name")
	flag.StringVar(&style, "style", "", "visual style, overrides the preset")
	flag.StringVar(&description, "description", "", "story premise")
	flag.StringVar(&locale, "locale", "en", "story language")
	flag.StringVar(&logFile, "log", "storylab.log", "file receiving the pipeline logs")
	flag.Parse()

	bootstrap.LoadEnv()
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fail("config: %v", err)
	}

	logOut, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fail("open log: %v", err)
	}
	defer logOut.Close()
	logger := infra.NewLoggerTo(logOut, cfg.AppEnv)

	chars, err := buildCharacters(strings.Split(namesFlag, ","), photosFlag)
	if err != nil {
		return fail("%v", err)
	}
	universes, err := catalog.Load(cfg.UniversesPath)
	if err != nil {
		return fail("universes: %v", err)
	}
	u := domain.Universe{ID: universe, Style: style}
	if _, ok := universes.Get(universe); !ok {
		u = domain.Universe{ID: "custom", Name: universe, Style: style}
	}
	req := domain.StoryRequest{
		Characters:  chars,
		Universe:    universes.Resolve(u),
		Description: description,
		Locale:      middleware.NormalizeLocale(locale),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		return fail("build pipeline: %v", err)
	}
	defer svc.Close()

	events := make(chan pipeline.Event, 16)
	done := make(chan tui.RunResult, 1)
	go func() {
		res, err := svc.Coordinator.Run(ctx, req, pipeline.ChannelSink(ctx, events))
		close(events)
		done <- tui.RunResult{Result: res, Err: err}
	}()

	final, err := tea.NewProgram(tui.New(events, done, cancel)).Run()
	if err != nil {
		return fail("tui: %v", err)
	}
	return exitCode(final)
}

// exitCode is 0 only when the model saw the run finish without error.
func exitCode(final tea.Model) int {
	m, ok := final.(tui.Model)
	if !ok {
		return 1
	}
	if res, finished := m.Result(); !finished || res.Err != nil {
		return 1
	}
	return 0
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "storylab: "+format+"\n", args...)
	return 1
}
