// Package pipeline runs a translation pass over the content document:
// load it, translate the source section into every target language,
// validate each result against the source key set, and persist the merged
// document behind a timestamped backup.
//
// A failure for one language skips that language and keeps its previous
// content. Load, credential and persist failures abort the run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cruz-resume/resumetl/config"
	"github.com/cruz-resume/resumetl/document"
	"github.com/cruz-resume/resumetl/keyset"
	"github.com/cruz-resume/resumetl/lockfile"
	"github.com/cruz-resume/resumetl/persist"
	"github.com/cruz-resume/resumetl/prompts"
	"github.com/cruz-resume/resumetl/translate"
)

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

// Status is the result of processing one target language.
type Status int

const (
	// StatusTranslated means the translation was validated and merged.
	StatusTranslated Status = iota
	// StatusSkipped means the language failed and kept its previous content.
	StatusSkipped
	// StatusUpToDate means --changed-only found nothing to do.
	StatusUpToDate
	// StatusDryRun means the prompt was resolved but nothing was sent.
	StatusDryRun
)

func (s Status) String() string {
	switch s {
	case StatusTranslated:
		return "translated"
	case StatusSkipped:
		return "skipped"
	case StatusUpToDate:
		return "up-to-date"
	case StatusDryRun:
		return "dry-run"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome records what happened to one target language.
type Outcome struct {
	Lang   string
	Status Status
	// Prompt tells where the instruction came from.
	Prompt prompts.Source
	// PromptBytes is the size of the full request prompt (dry run only).
	PromptBytes int
	// Extra lists key paths present in the translation but not the source.
	Extra []string
	// Err is the reason a language was skipped.
	Err      error
	Duration time.Duration
}

// Report summarizes a run.
type Report struct {
	// Outcomes are in processing order.
	Outcomes []Outcome
	// BackupPath is the backup written before saving, if any.
	BackupPath string
	// Saved reports whether the document was written.
	Saved bool
}

// Translated returns the languages that were merged.
func (r *Report) Translated() []string {
	return r.langs(StatusTranslated)
}

// Skipped returns the languages that failed.
func (r *Report) Skipped() []string {
	return r.langs(StatusSkipped)
}

func (r *Report) langs(status Status) []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Status == status {
			out = append(out, o.Lang)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// credentialChecker is implemented by translators that can tell up front
// whether they are usable.
type credentialChecker interface {
	Check() error
}

// Pipeline holds everything a run needs. Use New for the defaults derived
// from a Config.
type Pipeline struct {
	Config     *config.Config
	Translator translate.Translator
	Prompts    *prompts.Resolver
	Persister  *persist.Persister
	// Lock is loaded from Config.Root on first use when nil.
	Lock *lockfile.LockFile

	// DryRun resolves prompts without calling the provider or writing.
	DryRun bool
	// ChangedOnly skips languages whose source and instruction are
	// unchanged since their last successful translation.
	ChangedOnly bool

	// Now is the clock used for durations.
	Now func() time.Time

	// OnProgress is called before each language is processed.
	OnProgress func(lang string, done, total int)
	// OnLog emits informational messages.
	OnLog func(format string, args ...any)
	// OnWarn emits warnings.
	OnWarn func(format string, args ...any)
	// OnError emits per-language errors.
	OnError func(format string, args ...any)
}

// New returns a pipeline for cfg using tr as the translator.
func New(cfg *config.Config, tr translate.Translator) *Pipeline {
	return &Pipeline{
		Config:     cfg,
		Translator: tr,
		Prompts:    prompts.NewResolver(cfg.PromptsPath()),
		Persister:  persist.New(cfg.DataPath(), cfg.BackupPath()),
		Now:        time.Now,
	}
}

func (p *Pipeline) log(format string, args ...any) {
	if p.OnLog != nil {
		p.OnLog(format, args...)
	}
}

func (p *Pipeline) warn(format string, args ...any) {
	if p.OnWarn != nil {
		p.OnWarn(format, args...)
	} else {
		p.log(format, args...)
	}
}

func (p *Pipeline) errorf(format string, args ...any) {
	if p.OnError != nil {
		p.OnError(format, args...)
	} else {
		p.log(format, args...)
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Targets returns the configured target languages with duplicates and the
// source language removed, in configured order.
func (p *Pipeline) Targets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, lang := range p.Config.Languages {
		if strings.EqualFold(lang, p.Config.SourceLang) {
			p.warn("Ignoring source language %s in target list", lang)
			continue
		}
		if seen[lang] {
			continue
		}
		seen[lang] = true
		out = append(out, lang)
	}
	return out
}

// Run executes one pass. The returned error is non-nil only for fatal
// failures; per-language failures are reported in the Report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	cfg := p.Config

	// LOAD
	doc, err := document.Load(cfg.DataPath())
	if err != nil {
		return nil, err
	}
	src, err := doc.Source(cfg.SourceLang)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.DataPath(), err)
	}
	p.log("Source language: %s (%d sections)", cfg.SourceLang, src.Len())

	// CHECK_CREDENTIAL
	if !p.DryRun {
		if c, ok := p.Translator.(credentialChecker); ok {
			if err := c.Check(); err != nil {
				return nil, err
			}
		}
	}

	srcJSON, err := src.MarshalIndent("", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing source content: %w", err)
	}

	lock := p.lock()
	target := lockfile.DocumentKey(cfg.Root, cfg.DataPath())

	report := &Report{}
	hashes := make(map[string]string)
	targets := p.Targets()

	for i, lang := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.OnProgress != nil {
			p.OnProgress(lang, i, len(targets))
		}

		instruction, source := p.Prompts.Lookup(lang)
		content := lockfile.Content(srcJSON, instruction)
		hashes[lang] = content

		start := p.now()
		out := p.process(ctx, doc, src, lang, instruction, func() bool {
			return lock != nil && lock.Unchanged(target, lang, content)
		})
		out.Prompt = source
		out.Duration = p.now().Sub(start)

		if out.Status == StatusSkipped {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p.errorf("Error translating to %s: %v", lang, out.Err)
			p.warn("Skipping %s, keeping existing content", lang)
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	if p.DryRun {
		return report, nil
	}
	if p.ChangedOnly && len(report.Translated()) == 0 {
		p.log("Nothing changed, %s left untouched", cfg.DataPath())
		return report, nil
	}

	// PERSIST
	backup, err := p.Persister.Save(doc)
	if err != nil {
		return nil, err
	}
	report.BackupPath = backup
	report.Saved = true

	if lock != nil {
		done := p.now()
		for _, lang := range report.Translated() {
			lock.Record(target, lang, hashes[lang], cfg.Model, done)
		}
		// Languages outside this run keep their records as long as the
		// document still has them.
		if dropped := lock.Prune(target, doc.Languages()); len(dropped) > 0 {
			p.log("Dropped lock entries for %s", strings.Join(dropped, ", "))
		}
		if err := lock.Save(); err != nil {
			p.warn("Could not update lock file: %v", err)
		}
	}

	return report, nil
}

// process runs RESOLVE_PROMPT → TRANSLATE → VALIDATE → MERGE for one
// language. unchanged reports whether the lock file still matches.
func (p *Pipeline) process(ctx context.Context, doc *document.Document, src *document.Node, lang, instruction string, unchanged func() bool) Outcome {
	out := Outcome{Lang: lang}

	if p.ChangedOnly && unchanged() {
		if existing, ok := doc.Get(lang); ok {
			if diff := keyset.Compare(src, existing); diff.OK() {
				out.Status = StatusUpToDate
				return out
			}
		}
	}

	if p.DryRun {
		prompt, err := translate.BuildPrompt(instruction, src, lang)
		if err != nil {
			out.Status = StatusSkipped
			out.Err = &translate.Error{Lang: lang, Err: err}
			return out
		}
		out.Status = StatusDryRun
		out.PromptBytes = len(prompt)
		return out
	}

	translated, err := p.Translator.Translate(ctx, src, lang, instruction)
	if err != nil {
		out.Status = StatusSkipped
		out.Err = err
		return out
	}

	if translated == nil {
		out.Status = StatusSkipped
		out.Err = &translate.Error{Lang: lang, Err: fmt.Errorf("translator returned no content")}
		return out
	}

	diff, err := keyset.Validate(src, translated)
	if err != nil {
		out.Status = StatusSkipped
		out.Err = &translate.Error{Lang: lang, Err: err}
		return out
	}
	if len(diff.Extra) > 0 {
		out.Extra = diff.Extra
		p.warn("Extra keys in %s translation (may be OK): %s", lang, keyset.Summarize(diff.Extra))
	}

	doc.Set(lang, translated)
	out.Status = StatusTranslated
	return out
}

// lock returns the lock file, loading it on first use. A lock file that
// cannot be read disables --changed-only rather than failing the run.
func (p *Pipeline) lock() *lockfile.LockFile {
	if p.Lock != nil {
		return p.Lock
	}
	if p.DryRun && !p.ChangedOnly {
		return nil
	}
	lf, err := lockfile.Load(p.Config.Root)
	if err != nil {
		p.warn("Ignoring lock file: %v", err)
		return nil
	}
	p.Lock = lf
	return lf
}
