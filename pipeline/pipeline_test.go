package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruz-resume/resumetl/config"
	"github.com/cruz-resume/resumetl/document"
	"github.com/cruz-resume/resumetl/keyset"
	"github.com/cruz-resume/resumetl/lockfile"
	"github.com/cruz-resume/resumetl/persist"
	"github.com/cruz-resume/resumetl/prompts"
	"github.com/cruz-resume/resumetl/translate"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// stubTranslator answers from a per-language function and records calls.
type stubTranslator struct {
	fn       func(src *document.Node, lang string) (*document.Node, error)
	checkErr error
	calls    []string
	instr    map[string]string
}

func (s *stubTranslator) Translate(_ context.Context, src *document.Node, lang, instruction string) (*document.Node, error) {
	s.calls = append(s.calls, lang)
	if s.instr == nil {
		s.instr = make(map[string]string)
	}
	s.instr[lang] = instruction
	return s.fn(src, lang)
}

func (s *stubTranslator) Check() error {
	return s.checkErr
}

// identity returns a deep copy of the source tree.
func identity(src *document.Node, _ string) (*document.Node, error) {
	data, err := src.MarshalIndent("", "  ")
	if err != nil {
		return nil, err
	}
	return document.ParseNode(data)
}

func reply(json string) func(*document.Node, string) (*document.Node, error) {
	return func(*document.Node, string) (*document.Node, error) {
		return document.ParseNode([]byte(json))
	}
}

var testClock = time.Date(2026, 10, 16, 15, 30, 0, 0, time.Local)

// newTestPipeline writes data (unless empty) to a fresh root and returns a
// pipeline over it with a fixed persist clock.
func newTestPipeline(t *testing.T, data string, tr translate.Translator, langs ...string) *Pipeline {
	t.Helper()
	dir := t.TempDir()
	if data != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(data), 0644))
	}

	cfg := config.Default()
	cfg.Root = dir
	cfg.Languages = langs

	p := New(cfg, tr)
	p.Persister.Now = func() time.Time { return testClock }
	return p
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// ---------------------------------------------------------------------------
// Successful runs
// ---------------------------------------------------------------------------

func TestRun_EndToEnd(t *testing.T) {
	original := `{"zh-TW": {"title": "你好"}}`
	tr := &stubTranslator{fn: reply(`{"title": "Hello"}`)}
	p := newTestPipeline(t, original, tr, "en")

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Saved)
	assert.Equal(t, []string{"en"}, report.Translated())
	assert.Empty(t, report.Skipped())

	want := "{\n  \"zh-TW\": {\n    \"title\": \"你好\"\n  },\n  \"en\": {\n    \"title\": \"Hello\"\n  }\n}\n"
	assert.Equal(t, want, readFile(t, p.Config.DataPath()))

	backups := listDir(t, p.Config.BackupPath())
	require.Len(t, backups, 1)
	assert.Equal(t, "data_20261016_153000.json", backups[0])
	assert.Equal(t, filepath.Join(p.Config.BackupPath(), backups[0]), report.BackupPath)
	assert.Equal(t, original, readFile(t, report.BackupPath))
}

func TestRun_IdentityTranslationKeepsKeySet(t *testing.T) {
	data := `{"zh-TW": {"hero": {"title": "你好", "tags": ["a", {"label": "b"}]}, "years": 3}}`
	tr := &stubTranslator{fn: identity}
	p := newTestPipeline(t, data, tr, "en", "ja")

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"en", "ja"}, report.Translated())

	doc, err := document.Load(p.Config.DataPath())
	require.NoError(t, err)
	src, err := doc.Source("zh-TW")
	require.NoError(t, err)

	for _, lang := range []string{"en", "ja"} {
		tree, ok := doc.Get(lang)
		require.True(t, ok, lang)
		assert.Equal(t, keyset.Collect(src).Sorted(), keyset.Collect(tree).Sorted(), lang)
	}
}

func TestRun_UsesResolvedPrompts(t *testing.T) {
	tr := &stubTranslator{fn: identity}
	p := newTestPipeline(t, `{"zh-TW": {"t": "x"}}`, tr, "ja", "fr")

	require.NoError(t, os.MkdirAll(p.Config.PromptsPath(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(p.Config.PromptsPath(), "ja.txt"), []byte("CUSTOM JA"), 0644))

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "CUSTOM JA", tr.instr["ja"])
	assert.Equal(t, prompts.EnglishPrompt, tr.instr["fr"])
	assert.Equal(t, prompts.SourceOverride, report.Outcomes[0].Prompt)
	assert.Equal(t, prompts.SourceFallback, report.Outcomes[1].Prompt)
}

func TestRun_ExtraKeysAreTolerated(t *testing.T) {
	tr := &stubTranslator{fn: reply(`{"title": "Hello", "bonus": "!"}`)}
	p := newTestPipeline(t, `{"zh-TW": {"title": "你好"}}`, tr, "en")

	var warnings []string
	p.OnWarn = func(format string, args ...any) { warnings = append(warnings, fmt.Sprintf(format, args...)) }

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StatusTranslated, report.Outcomes[0].Status)
	assert.Equal(t, []string{"bonus"}, report.Outcomes[0].Extra)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "bonus")
}

func TestRun_SourceAndDuplicateTargetsProcessedOnce(t *testing.T) {
	tr := &stubTranslator{fn: identity}
	p := newTestPipeline(t, `{"zh-TW": {"t": "x"}}`, tr, "en", "zh-TW", "en", "ja")

	var warnings []string
	p.OnWarn = func(format string, args ...any) { warnings = append(warnings, fmt.Sprintf(format, args...)) }

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "ja"}, tr.calls)
	assert.Len(t, report.Outcomes, 2)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "zh-TW")
}

// ---------------------------------------------------------------------------
// Per-language failures
// ---------------------------------------------------------------------------

func TestRun_FailedLanguagesKeepPreviousContent(t *testing.T) {
	data := `{"zh-TW": {"a": {"b": "1", "c": "2"}}, "ja": {"a": {"b": "古い", "c": "古い"}}}`
	tr := &stubTranslator{fn: func(src *document.Node, lang string) (*document.Node, error) {
		switch lang {
		case "ja":
			return nil, &translate.Error{Lang: "ja", Err: errors.New("API returned status 500")}
		case "ko":
			return document.ParseNode([]byte(`{"a": {"b": "하나"}}`))
		}
		return identity(src, lang)
	}}
	p := newTestPipeline(t, data, tr, "en", "ja", "ko")

	var errs []string
	p.OnError = func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	report, err := p.Run(context.Background())
	require.NoError(t, err, "per-language failures are not fatal")

	assert.Equal(t, []string{"en", "ja", "ko"}, tr.calls)
	assert.Equal(t, []string{"en"}, report.Translated())
	assert.Equal(t, []string{"ja", "ko"}, report.Skipped())
	assert.Len(t, errs, 2)

	var te *translate.Error
	require.True(t, errors.As(report.Outcomes[1].Err, &te))
	assert.Equal(t, "ja", te.Lang)

	koErr := report.Outcomes[2].Err
	assert.True(t, errors.Is(koErr, keyset.ErrStructuralMismatch))
	require.True(t, errors.As(koErr, &te))
	assert.Equal(t, "ko", te.Lang)
	assert.Contains(t, koErr.Error(), "a.c")

	doc, err := document.Load(p.Config.DataPath())
	require.NoError(t, err)
	ja, _ := doc.Get("ja")
	b, _ := ja.Field("a")
	v, _ := b.Field("b")
	assert.Equal(t, "古い", v.Scalar)

	_, hasKo := doc.Get("ko")
	assert.False(t, hasKo, "failed new language must not be added")

	assert.Equal(t, []string{"zh-TW", "ja", "en"}, doc.Languages())
	assert.True(t, report.Saved)
}

func TestRun_EmptyTranslationIsSkipped(t *testing.T) {
	data := `{"zh-TW": {}, "en": {"old": "kept"}}`
	tr := &stubTranslator{fn: func(*document.Node, string) (*document.Node, error) {
		return nil, nil
	}}
	p := newTestPipeline(t, data, tr, "en", "ja")

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "ja"}, report.Skipped())

	var te *translate.Error
	require.True(t, errors.As(report.Outcomes[0].Err, &te))
	assert.Equal(t, "en", te.Lang)

	doc, err := document.Load(p.Config.DataPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"zh-TW", "en"}, doc.Languages())
	en, _ := doc.Get("en")
	assert.Equal(t, []string{"old"}, en.Keys())
}

// ---------------------------------------------------------------------------
// Fatal errors
// ---------------------------------------------------------------------------

func TestRun_MissingFileIsFatal(t *testing.T) {
	tr := &stubTranslator{fn: identity}
	p := newTestPipeline(t, "", tr, "en")

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, document.ErrNotFound))
	assert.Empty(t, tr.calls)
	assert.Empty(t, listDir(t, p.Config.Root), "no files may be created")
}

func TestRun_MalformedInputIsFatal(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{"zh-TW": `, document.ErrMalformed},
		{"missing source", `{"en": {"t": "x"}}`, document.ErrMissingSource},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := &stubTranslator{fn: identity}
			p := newTestPipeline(t, tc.data, tr, "en")

			_, err := p.Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.True(t, errors.Is(err, document.ErrMalformed))
			assert.Empty(t, tr.calls)
			assert.Equal(t, tc.data, readFile(t, p.Config.DataPath()))
		})
	}
}

func TestRun_MissingCredentialIsFatal(t *testing.T) {
	data := `{"zh-TW": {"t": "x"}}`
	tr := &stubTranslator{fn: identity, checkErr: translate.ErrMissingCredential}
	p := newTestPipeline(t, data, tr, "en")

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, translate.ErrMissingCredential))
	assert.Empty(t, tr.calls)
	assert.Equal(t, data, readFile(t, p.Config.DataPath()))
	assert.Empty(t, listDir(t, p.Config.BackupPath()))
}

func TestRun_PersistFailureIsFatal(t *testing.T) {
	tr := &stubTranslator{fn: identity}
	p := newTestPipeline(t, `{"zh-TW": {"t": "x"}}`, tr, "en")

	blocker := filepath.Join(p.Config.Root, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	p.Persister.BackupDir = filepath.Join(blocker, "backups")

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, persist.ErrPersist))
}

func TestRun_CancelledContext(t *testing.T) {
	tr := &stubTranslator{fn: identity}
	data := `{"zh-TW": {"t": "x"}}`
	p := newTestPipeline(t, data, tr, "en")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, tr.calls)
	assert.Equal(t, data, readFile(t, p.Config.DataPath()))
}

// ---------------------------------------------------------------------------
// Dry run and changed-only
// ---------------------------------------------------------------------------

func TestRun_DryRun(t *testing.T) {
	data := `{"zh-TW": {"t": "x"}}`
	tr := &stubTranslator{fn: identity, checkErr: translate.ErrMissingCredential}
	p := newTestPipeline(t, data, tr, "en", "ja")
	p.DryRun = true

	report, err := p.Run(context.Background())
	require.NoError(t, err, "dry run needs no credential")

	assert.Empty(t, tr.calls)
	assert.False(t, report.Saved)
	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		assert.Equal(t, StatusDryRun, o.Status)
		assert.Greater(t, o.PromptBytes, 0)
	}
	assert.Equal(t, data, readFile(t, p.Config.DataPath()))
	assert.Empty(t, listDir(t, p.Config.BackupPath()))
	assert.NotContains(t, listDir(t, p.Config.Root), ".resumetl.lock")
}

func TestRun_ChangedOnly(t *testing.T) {
	tr := &stubTranslator{fn: identity}
	p := newTestPipeline(t, `{"zh-TW": {"t": "x"}}`, tr, "en", "ja")

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"en", "ja"}, tr.calls)
	assert.Contains(t, listDir(t, p.Config.Root), ".resumetl.lock")

	// Nothing changed: no calls and no new backup.
	again := New(p.Config, tr)
	again.Persister.Now = p.Persister.Now
	again.ChangedOnly = true
	tr.calls = nil

	report, err := again.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tr.calls)
	assert.False(t, report.Saved)
	for _, o := range report.Outcomes {
		assert.Equal(t, StatusUpToDate, o.Status, o.Lang)
	}
	assert.Len(t, listDir(t, p.Config.BackupPath()), 1)

	// Editing the ja instruction re-translates ja only.
	require.NoError(t, os.MkdirAll(p.Config.PromptsPath(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(p.Config.PromptsPath(), "ja.txt"), []byte("new"), 0644))

	third := New(p.Config, tr)
	third.Persister.Now = p.Persister.Now
	third.ChangedOnly = true

	report, err = third.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ja"}, tr.calls)
	assert.Equal(t, []string{"ja"}, report.Translated())
	assert.True(t, report.Saved)
	assert.Len(t, listDir(t, p.Config.BackupPath()), 2)
}

func TestRun_PartialRunKeepsLockForOtherLanguages(t *testing.T) {
	tr := &stubTranslator{fn: identity}
	p := newTestPipeline(t, `{"zh-TW": {"t": "x"}}`, tr, "en", "ja")

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// A ja-only run must not forget en.
	jaOnly := *p.Config
	jaOnly.Languages = []string{"ja"}
	partial := New(&jaOnly, tr)
	partial.Persister.Now = p.Persister.Now
	_, err = partial.Run(context.Background())
	require.NoError(t, err)

	lock, err := lockfile.Load(p.Config.Root)
	require.NoError(t, err)
	_, hasEn := lock.Lookup("data.json", "en")
	assert.True(t, hasEn, "en record dropped by a ja-only run")

	tr.calls = nil
	again := New(p.Config, tr)
	again.Persister.Now = p.Persister.Now
	again.ChangedOnly = true

	report, err := again.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tr.calls)
	assert.False(t, report.Saved)
}

func TestRun_LockDropsLanguagesRemovedFromDocument(t *testing.T) {
	tr := &stubTranslator{fn: identity}
	p := newTestPipeline(t, `{"zh-TW": {"t": "x"}}`, tr, "en", "ja")

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// Drop ja from the document by hand, then translate en again.
	require.NoError(t, os.WriteFile(p.Config.DataPath(), []byte(`{"zh-TW": {"t": "x"}, "en": {"t": "x"}}`), 0644))
	enOnly := *p.Config
	enOnly.Languages = []string{"en"}
	_, err = New(&enOnly, tr).Run(context.Background())
	require.NoError(t, err)

	lock, err := lockfile.Load(p.Config.Root)
	require.NoError(t, err)
	assert.Equal(t, "data.json: en", lock.Summary())

	rec, ok := lock.Lookup("data.json", "en")
	require.True(t, ok)
	assert.Equal(t, p.Config.Model, rec.Model)
	assert.False(t, rec.Translated.IsZero())
}

func TestRun_ExportedPromptsKeepLanguagesUpToDate(t *testing.T) {
	tr := &stubTranslator{fn: identity}
	p := newTestPipeline(t, `{"zh-TW": {"t": "x"}}`, tr, "en", "ja")

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	_, err = prompts.WriteDefaults(p.Config.PromptsPath(), false)
	require.NoError(t, err)

	tr.calls = nil
	again := New(p.Config, tr)
	again.ChangedOnly = true
	report, err := again.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tr.calls)
	for _, o := range report.Outcomes {
		assert.Equal(t, prompts.SourceOverride, o.Prompt, o.Lang)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "translated", StatusTranslated.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
	assert.Equal(t, "up-to-date", StatusUpToDate.String())
	assert.Equal(t, "dry-run", StatusDryRun.String())
}
