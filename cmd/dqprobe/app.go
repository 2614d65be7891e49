package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dqprobe/internal/charprof"
	"dqprobe/internal/config"
	"dqprobe/internal/country"
	"dqprobe/internal/engine"
	"dqprobe/internal/logging"
	"dqprobe/internal/metrics"
	"dqprobe/internal/metrics/datadog"
	parserjson "dqprobe/internal/parser/json"
	"dqprobe/internal/profile"
	"dqprobe/internal/report"
	"dqprobe/internal/rules"
	"dqprobe/internal/source"
	"dqprobe/internal/source/htmltable"
	"dqprobe/internal/storage"
	"dqprobe/internal/walker"
)

// app carries the state of one CLI invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfgFile string
	v       *viper.Viper
	cfg     config.Config
	log     *zap.Logger
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	v := viper.New()
	config.SetDefaults(v)
	return &app{stdin: stdin, stdout: stdout, stderr: stderr, v: v, log: zap.NewNop()}
}

// setup binds the running command's flags, loads the configuration and
// builds the logger.
func (a *app) setup(fs *pflag.FlagSet) error {
	if err := bindFlags(a, fs); err != nil {
		return err
	}
	if err := config.Configure(a.v, a.cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func (a *app) teardown() {
	_ = a.log.Sync()
}

func (a *app) opener() source.Opener {
	return source.Opener{Stdin: a.stdin}
}

// engineConfig maps the loaded configuration onto an engine run.
func (a *app) engineConfig(format engine.Format) (engine.Config, error) {
	p := a.cfg.Profile
	delim, err := a.cfg.DelimiterRune()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Format:               format,
		Grain:                a.cfg.Grain(),
		PathDepth:            p.PathDepth,
		CollapseArrayIndices: p.RemoveArrayNumbers,
		HeaderRow:            p.HeaderRow,
		Delimiter:            delim,
		Workers:              p.Workers,
		MaxExampleLen:        p.MaxLen,
		ProfileRules:         p.Rules,
	}, nil
}

// readInput materializes location as lines and settles the format. Array
// extraction yields JSON lines when the input is a single array or envelope
// document; otherwise the lines are kept and sniffed as usual. HTML is converted by
// the table or record adapter.
func (a *app) readInput(ctx context.Context, location string) ([]string, engine.Format, error) {
	p := a.cfg.Profile
	format, err := engine.ParseFormat(p.Format)
	if err != nil {
		return nil, format, err
	}

	rc, err := a.opener().Open(ctx, location)
	if err != nil {
		return nil, format, err
	}
	defer rc.Close()

	lines, err := source.ReadLines(rc)
	if err != nil {
		return nil, format, err
	}

	if p.ExtractArray != "" {
		recs, err := parserjson.ExtractLines(ctx, strings.NewReader(strings.Join(lines, "\n")), p.ExtractArray)
		switch {
		case err == nil:
			a.log.Debug("extracted array", zap.String("field", p.ExtractArray), zap.Int("records", len(recs)))
			return recs, engine.FormatJSON, nil
		case ctx.Err() != nil:
			return nil, format, ctx.Err()
		default:
			a.log.Warn("array extraction failed, processing input line by line",
				zap.String("field", p.ExtractArray), zap.Error(err))
		}
	}

	if format == engine.FormatAuto {
		format = engine.Sniff(lines)
	}
	if format != engine.FormatHTML {
		return lines, format, nil
	}

	page := strings.NewReader(strings.Join(lines, "\n"))
	if p.HTMLRecord != "" {
		mappings, err := htmltable.ParseMappings(p.HTMLFields)
		if err != nil {
			return nil, format, err
		}
		recs, err := htmltable.RecordLines(page, p.HTMLRecord, mappings)
		if err != nil {
			return nil, format, err
		}
		a.log.Debug("html records", zap.String("selector", p.HTMLRecord), zap.Int("records", len(recs)))
		return recs, engine.FormatJSON, nil
	}

	delim, err := a.cfg.DelimiterRune()
	if err != nil {
		return nil, format, err
	}
	rows, err := htmltable.TableLines(page, p.HTMLTable, delim)
	if err != nil {
		return nil, format, err
	}
	a.log.Debug("html table", zap.Int("table", p.HTMLTable), zap.Int("rows", len(rows)))
	return rows, engine.FormatTabular, nil
}

// countryCache returns a cache over the configured reference table, or the
// built-in one.
func (a *app) countryCache() (*country.Cache, error) {
	if a.cfg.Countries == "" {
		return country.NewCache(nil), nil
	}
	f, err := os.Open(a.cfg.Countries)
	if err != nil {
		return nil, fmt.Errorf("open countries: %w", err)
	}
	defer f.Close()
	ref, err := country.LoadReference(f)
	if err != nil {
		return nil, fmt.Errorf("load countries %s: %w", a.cfg.Countries, err)
	}
	a.log.Info("country reference loaded", zap.String("path", a.cfg.Countries), zap.Int("countries", ref.Len()))
	return country.NewCache(ref), nil
}

func (a *app) newEngine(m metrics.Backend) (*engine.Engine, error) {
	cache, err := a.countryCache()
	if err != nil {
		return nil, err
	}
	return engine.New(
		engine.WithLogger(a.log),
		engine.WithMetrics(m),
		engine.WithRules(rules.New(cache)),
	), nil
}

// metricsBackend returns the Datadog backend when enabled. close flushes it.
func (a *app) metricsBackend(ctx context.Context) (metrics.Backend, func(), error) {
	d := a.cfg.Datadog
	if !d.Enabled {
		return metrics.Nop{}, func() {}, nil
	}
	b, err := datadog.NewBackend(ctx, datadog.Options{
		JobName:    d.Job,
		Tags:       datadog.ParseTagsCSV(d.Tags),
		FlushEvery: d.FlushEvery,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("datadog: %w", err)
	}
	return b, func() {
		if err := b.Close(); err != nil {
			a.log.Warn("datadog flush failed", zap.Error(err))
		}
	}, nil
}

func (a *app) runProfile(ctx context.Context, location string) error {
	lines, format, err := a.readInput(ctx, location)
	if err != nil {
		return err
	}
	ecfg, err := a.engineConfig(format)
	if err != nil {
		return err
	}

	m, closeMetrics, err := a.metricsBackend(ctx)
	if err != nil {
		return err
	}
	defer closeMetrics()

	eng, err := a.newEngine(m)
	if err != nil {
		return err
	}
	rep, err := eng.Profile(ctx, lines, ecfg)
	if err != nil {
		return err
	}
	if err := report.WriteText(a.stdout, rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if a.cfg.Sink.Kind == "" {
		return nil
	}
	return a.persist(ctx, rep)
}

func (a *app) persist(ctx context.Context, rep *profile.Report) error {
	s := a.cfg.Sink
	repo, err := storage.New(ctx, storage.Config{Kind: s.Kind, DSN: s.DSN})
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer repo.Close()

	n, err := report.Persist(ctx, repo, s.Table, rep)
	if err != nil {
		return err
	}
	a.log.Info("report persisted",
		zap.String("sink", s.Kind),
		zap.String("table", s.Table),
		zap.String("run_id", rep.RunID),
		zap.Int64("rows", n),
	)
	return nil
}

func (a *app) runEnhance(ctx context.Context, location string, flat bool) error {
	lines, format, err := a.readInput(ctx, location)
	if err != nil {
		return err
	}
	ecfg, err := a.engineConfig(format)
	if err != nil {
		return err
	}
	eng, err := a.newEngine(metrics.Nop{})
	if err != nil {
		return err
	}

	w := bufio.NewWriter(a.stdout)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err = eng.EnhanceLines(ctx, lines, ecfg, flat, func(v walker.Value) error {
		buf.Reset()
		if err := enc.Encode(v); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	})
	if err != nil {
		return err
	}
	return w.Flush()
}

func (a *app) runCharprof(ctx context.Context, location string) error {
	rc, err := a.opener().Open(ctx, location)
	if err != nil {
		return err
	}
	defer rc.Close()

	entries, err := charprof.Count(ctx, rc)
	if err != nil {
		return err
	}
	return charprof.WriteText(a.stdout, entries)
}
