package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/rmodel/internal/config"
	"github.com/standardbeagle/rmodel/internal/debug"
	"github.com/standardbeagle/rmodel/internal/lifetime"
	"github.com/standardbeagle/rmodel/internal/mirror"
	"github.com/standardbeagle/rmodel/internal/model"
	"github.com/standardbeagle/rmodel/internal/reactive"
	"github.com/standardbeagle/rmodel/internal/script"
)

// StepReport is one replayed transaction
type StepReport struct {
	Step      int    `json:"step"`
	Label     string `json:"label"`
	Committed bool   `json:"committed"`
	Expected  bool   `json:"expected"`
	Revision  uint64 `json:"revision,omitempty"`
	Changes   int    `json:"changes"`
	Error     string `json:"error,omitempty"`
}

// TagReport is the final state of a followed tag
type TagReport struct {
	Name        string   `json:"name"`
	Rule        string   `json:"rule"`
	Members     []string `json:"members"`
	Fired       int64    `json:"fired"`
	Evaluations int64    `json:"evaluations"`
}

// ReplayReport is the JSON output of replay
type ReplayReport struct {
	Script string         `json:"script"`
	Steps  []StepReport   `json:"steps"`
	Tags   []TagReport    `json:"tags"`
	Stats  reactive.Stats `json:"stats"`
}

// followedTag is a tag signal with a reaction counting its changes
type followedTag struct {
	name   string
	signal *reactive.TagSignal
	handle *reactive.ReactionHandle
}

func (f *followedTag) report() TagReport {
	paths := f.signal.Value().Paths()
	members := make([]string, len(paths))
	for i, p := range paths {
		members[i] = p.String()
	}
	return TagReport{
		Name:        f.name,
		Rule:        f.signal.Rule().Name(),
		Members:     members,
		Fired:       f.handle.Fires(),
		Evaluations: f.signal.Evaluations(),
	}
}

// selectTags resolves --tag names against the configuration
func selectTags(cfg *config.Config, names []string) ([]config.Tag, error) {
	if len(names) == 0 {
		return cfg.Tags, nil
	}
	tags := make([]config.Tag, 0, len(names))
	for _, name := range names {
		tag, ok := cfg.FindTag(name)
		if !ok {
			return nil, unknownTagError(name, cfg.TagNames())
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// followTags subscribes to every tag and registers a reaction per tag. When
// onChange is set it receives the members added and removed by each change.
func followTags(m *reactive.ReactiveModel, lt *lifetime.Lifetime, tags []config.Tag,
	onChange func(tag string, added, removed []model.Path)) ([]*followedTag, error) {
	followed := make([]*followedTag, 0, len(tags))
	for _, tag := range tags {
		rule, err := tag.Rule()
		if err != nil {
			return nil, err
		}
		sig := reactive.Subscribe(m, lt, tag.Name, rule)

		name := tag.Name
		prev := sig.Value()
		handle := reactive.Reaction(m, lt, false, "report "+name, sig, func(cur reactive.TagSet) {
			added, removed := cur.Compare(prev)
			prev = cur
			if onChange != nil {
				onChange(name, added, removed)
			}
		})
		followed = append(followed, &followedTag{name: name, signal: sig, handle: handle})
	}
	return followed, nil
}

// replay runs the script at path against a fresh model
func replay(cfg *config.Config, path string, tags []config.Tag) (*reactive.ReactiveModel, *ReplayReport, error) {
	s, err := script.Load(path)
	if err != nil {
		return nil, nil, err
	}

	m := newModel(cfg)
	followed, err := followTags(m, m.Lifetime(), tags, nil)
	if err != nil {
		_ = m.Close()
		return nil, nil, err
	}

	results, applyErr := s.Apply(m)

	report := &ReplayReport{Script: path}
	for _, r := range results {
		step := StepReport{Step: r.Step, Label: r.Label, Committed: r.Committed(), Expected: r.Expected}
		if r.Snapshot != nil {
			step.Revision = r.Snapshot.Revision
			step.Changes = len(r.Snapshot.Changes)
		}
		if r.Err != nil {
			step.Error = r.Err.Error()
		}
		report.Steps = append(report.Steps, step)
	}
	for _, f := range followed {
		report.Tags = append(report.Tags, f.report())
	}
	report.Stats = m.Stats()
	return m, report, applyErr
}

func replayCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: rmodel replay <script.toml>")
	}
	cfg := loadedConfig(c)
	tags, err := selectTags(cfg, c.StringSlice("tag"))
	if err != nil {
		return err
	}

	m, report, err := replay(cfg, c.Args().Get(0), tags)
	if report == nil {
		return err
	}
	defer m.Close()

	if c.Bool("json") {
		if jerr := writeJSON(c.App.Writer, report); jerr != nil {
			return jerr
		}
	} else {
		printReplay(c.App.Writer, report)
	}
	return err
}

func printReplay(w io.Writer, report *ReplayReport) {
	for _, s := range report.Steps {
		switch {
		case s.Committed:
			fmt.Fprintf(w, "step %d %q: committed revision %d (%d changes)\n", s.Step, s.Label, s.Revision, s.Changes)
		case s.Expected:
			fmt.Fprintf(w, "step %d %q: aborted as expected\n", s.Step, s.Label)
		default:
			fmt.Fprintf(w, "step %d %q: aborted: %s\n", s.Step, s.Label, s.Error)
		}
	}
	for _, t := range report.Tags {
		fmt.Fprintf(w, "tag %s %s: %d members, reaction fired %d times\n", t.Name, t.Rule, len(t.Members), t.Fired)
		for _, p := range t.Members {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

func getCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: rmodel get <script.toml> <path>")
	}
	path, err := model.ParsePath(c.Args().Get(1))
	if err != nil {
		return err
	}

	m, report, err := replay(loadedConfig(c), c.Args().Get(0), nil)
	if report == nil {
		return err
	}
	defer m.Close()
	if err != nil {
		return err
	}

	value := m.Get(path)
	if model.IsAbsent(value) {
		return fmt.Errorf("nothing at %s", path)
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, model.ToGo(value))
	}
	fmt.Fprintln(c.App.Writer, model.Format(value))
	return nil
}

func tagsCommand(c *cli.Context) error {
	cfg := loadedConfig(c)
	if len(cfg.Tags) == 0 {
		fmt.Fprintf(c.App.Writer, "no tags configured (add a tags section to %s)\n", config.FileName)
		return nil
	}
	for _, tag := range cfg.Tags {
		rule, err := tag.Rule()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", tag.Name, rule.Name())
	}
	return nil
}

func mirrorCommand(c *cli.Context) error {
	cfg := loadedConfig(c)
	mcfg := cfg.Mirror
	if c.NArg() > 0 {
		dir, err := filepath.Abs(c.Args().Get(0))
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", c.Args().Get(0), err)
		}
		mcfg.Root = dir
	}
	tags, err := selectTags(cfg, c.StringSlice("tag"))
	if err != nil {
		return err
	}

	m := newModel(cfg)
	defer m.Close()
	lt := m.Lifetime().Child("mirror")
	defer func() { _ = lt.Terminate() }()

	w := c.App.Writer
	var onChange func(string, []model.Path, []model.Path)
	if !c.Bool("once") {
		onChange = func(tag string, added, removed []model.Path) {
			for _, p := range removed {
				fmt.Fprintf(w, "- %s %s\n", tag, p)
			}
			for _, p := range added {
				fmt.Fprintf(w, "+ %s %s\n", tag, p)
			}
		}
	}
	followed, err := followTags(m, lt, tags, onChange)
	if err != nil {
		return err
	}

	mr, err := mirror.New(m, mcfg)
	if err != nil {
		return err
	}

	if c.Bool("once") {
		if _, err := mr.Sync(c.Context); err != nil {
			return err
		}
		for _, f := range followed {
			r := f.report()
			fmt.Fprintf(w, "tag %s: %d members\n", r.Name, len(r.Members))
			for _, p := range r.Members {
				fmt.Fprintf(w, "  %s\n", p)
			}
		}
		return nil
	}

	if err := mr.Start(lt); err != nil {
		return err
	}
	fmt.Fprintf(w, "mirroring %s at %s (Ctrl-C to stop)\n", mr.Root(), mr.Mount())

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stats := mr.Stats()
	debug.LogMirror("stopping after %d batches (%d events, %d errors)\n", stats.Batches, stats.EventsProcessed, stats.ErrorCount)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
