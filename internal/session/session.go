// Package session drives one capture from page signals to a saved row:
// it loads the schema, detects an existing row for the page URL, renders
// the form, applies edits and auto-fill, and submits.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/clipd/internal/autofill"
	"github.com/kalambet/clipd/internal/extract"
	"github.com/kalambet/clipd/internal/form"
	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/payload"
	"github.com/kalambet/clipd/internal/property"
	"github.com/kalambet/clipd/internal/schemacache"
	"github.com/kalambet/clipd/internal/storage"
)

var (
	ErrInvalidValue = errors.New("invalid field value")
	ErrNoContent    = errors.New("no page text to auto-fill from")
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// Credentials identify the target database and the optional AI key.
type Credentials struct {
	NotionToken string
	DatabaseID  string
	URLProperty string
	AIKey       string
}

// Filler proposes field values from free text.
type Filler interface {
	Fill(ctx context.Context, columns []property.Column, text string) (map[string]property.Value, error)
}

// SchemaCache is the subset of schemacache.Cache a session uses.
type SchemaCache interface {
	Newest() (schemacache.Entry, bool, error)
	IsFresh(e schemacache.Entry) bool
	Put(key string, s property.Schema) (bool, error)
}

// PrefsSource supplies the user's layout preferences.
type PrefsSource interface {
	Get() (form.Preferences, error)
}

// TabFetcher loads page content when the shell only sent a URL.
type TabFetcher interface {
	Fill(ctx context.Context, tab extract.Tab) (extract.Tab, error)
}

// History records successful saves.
type History interface {
	SaveCapture(c storage.Capture) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Deps are the collaborators shared by all sessions. Credentials and
// NewStore are required; everything else is optional. NewFiller must
// return an untyped nil when no AI key is configured.
type Deps struct {
	Credentials  func(ctx context.Context) (Credentials, error)
	NewStore     func(c Credentials) Store
	NewFiller    func(c Credentials) Filler
	Cache        SchemaCache
	Prefs        PrefsSource
	Fetcher      TabFetcher
	History      History
	Clock        Clock
	Extract      extract.Options
	OnTransition func(v View)
}

// Result is the outcome of a successful submit.
type Result struct {
	RowID  string `json:"rowId"`
	Action string `json:"action"`
}

// Session is the state of one capture. All methods are safe for
// concurrent use; long calls to the store or the AI service run without
// holding the lock and re-check the session afterwards.
type Session struct {
	id     string
	deps   Deps
	logger *slog.Logger

	// ctx is cancelled by Close and aborts in-flight requests.
	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	store      Store
	filler     Filler
	databaseID string

	mu        sync.Mutex
	closed    bool
	phase     Phase
	mode      Mode
	activity  Activity
	schema    property.Schema
	signals   extract.Signals
	prefs     form.Preferences
	urlColumn string
	existing  *notion.Page
	form      form.Form
	rowID     string
	lastErr   string
}

func newSession(deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     id,
		deps:   deps,
		logger: slog.Default().With("session", id),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// start joins the independent start-up loads, resolves the schema, looks
// for an existing row and renders the first form.
func (s *Session) start(ctx context.Context, tab extract.Tab) error {
	var (
		signals   extract.Signals
		creds     Credentials
		credsErr  error
		prefs     form.Preferences
		cached    schemacache.Entry
		haveCache bool
	)

	// Each branch substitutes its own fallback, so none fails the group.
	var g errgroup.Group
	g.Go(func() error {
		signals = s.loadSignals(ctx, tab)
		return nil
	})
	g.Go(func() error {
		creds, credsErr = s.deps.Credentials(ctx)
		return nil
	})
	g.Go(func() error {
		prefs = s.loadPrefs()
		return nil
	})
	g.Go(func() error {
		cached, haveCache = s.loadCache()
		return nil
	})
	_ = g.Wait()

	s.mu.Lock()
	s.signals = signals
	s.prefs = prefs
	s.mu.Unlock()

	if credsErr != nil {
		s.fail(credsErr)
		return credsErr
	}

	s.databaseID = creds.DatabaseID
	s.store = s.deps.NewStore(creds)
	if s.deps.NewFiller != nil {
		s.filler = s.deps.NewFiller(creds)
	}

	fromCache := haveCache && cached.Key == creds.DatabaseID && s.deps.Cache.IsFresh(cached)
	schema := cached.Schema
	if !fromCache {
		var err error
		schema, err = s.store.Schema(ctx)
		if err != nil {
			s.fail(err)
			return fmt.Errorf("fetching schema: %w", err)
		}
		s.cachePut(schema)
	}

	urlColumn := URLColumn(schema, creds.URLProperty, prefs.Order)
	s.mu.Lock()
	s.schema = schema
	s.urlColumn = urlColumn
	s.phase = PhaseSchemaLoaded
	s.mode = ModeChecking
	s.mu.Unlock()
	s.notify()

	existing := s.lookupExisting(ctx, urlColumn, signals.URL)

	s.mu.Lock()
	s.existing = existing
	if existing != nil {
		s.mode = ModeExisting
		s.rowID = existing.ID
	} else {
		s.mode = ModeNew
	}
	s.render()
	s.mu.Unlock()
	s.notify()

	if fromCache {
		s.bg.Add(1)
		go s.backgroundRefresh()
	}
	return nil
}

func (s *Session) loadSignals(ctx context.Context, tab extract.Tab) (sig extract.Signals) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("extraction failed", "error", r)
			sig = extract.Signals{URL: tab.URL, Title: tab.Title}
		}
	}()
	if tab.HTML == "" && tab.Text == "" && tab.URL != "" && s.deps.Fetcher != nil {
		filled, err := s.deps.Fetcher.Fill(ctx, tab)
		if err != nil {
			s.logger.Warn("fetching page failed", "url", tab.URL, "error", err)
		} else {
			tab = filled
		}
	}
	return extract.Extract(tab, s.deps.Extract)
}

func (s *Session) loadPrefs() form.Preferences {
	if s.deps.Prefs == nil {
		return form.Preferences{}
	}
	p, err := s.deps.Prefs.Get()
	if err != nil {
		s.logger.Warn("loading preferences failed", "error", err)
		return form.Preferences{}
	}
	return p
}

func (s *Session) loadCache() (schemacache.Entry, bool) {
	if s.deps.Cache == nil {
		return schemacache.Entry{}, false
	}
	e, ok, err := s.deps.Cache.Newest()
	if err != nil {
		s.logger.Warn("reading schema cache failed", "error", err)
		return schemacache.Entry{}, false
	}
	return e, ok
}

func (s *Session) cachePut(schema property.Schema) bool {
	if s.deps.Cache == nil {
		return false
	}
	changed, err := s.deps.Cache.Put(s.databaseID, schema)
	if err != nil {
		s.logger.Warn("writing schema cache failed", "error", err)
	}
	return changed
}

// lookupExisting finds the row already saved for url. Failures are logged
// and treated as no row.
func (s *Session) lookupExisting(ctx context.Context, column, url string) *notion.Page {
	if column == "" || url == "" {
		return nil
	}
	page, err := s.store.FindByURL(ctx, column, url)
	if err != nil {
		s.logger.Warn("existing row lookup failed", "column", column, "error", notion.Describe(err))
		return nil
	}
	return page
}

// render replaces the form wholesale. Caller holds s.mu.
func (s *Session) render() {
	var row *form.Row
	if s.existing != nil {
		row = form.ParseRow(s.schema, s.existing)
	}
	s.form = form.Synthesize(form.Input{
		Schema:   s.schema,
		Signals:  s.signals,
		Existing: row,
		Prefs:    s.prefs,
	})
	s.phase = PhaseRendered
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.phase = PhaseError
	s.lastErr = describe(err)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	if s.deps.OnTransition != nil {
		s.deps.OnTransition(s.View())
	}
}

// bind derives a context that also ends when the session is closed.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// SetValues applies user edits. Values are decoded per column type; the
// whole batch is rejected if any name or value is invalid.
func (s *Session) SetValues(values map[string]any) error {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return err
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	f := s.form.Clone()
	for _, name := range names {
		fld, ok := f.Field(name)
		if !ok {
			err := f.Set(name, property.Value{})
			s.mu.Unlock()
			return err
		}
		v, err := property.Coerce(fld.Type, values[name])
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
		fld.Value = v
	}
	s.form = f
	s.phase = PhaseEditing
	s.mu.Unlock()
	s.notify()
	return nil
}

// ready checks that an action may start. Caller holds s.mu.
func (s *Session) ready() error {
	if s.closed {
		return ErrClosed
	}
	if s.activity != ActivityIdle {
		return ErrBusy
	}
	return nil
}

// AutoFill asks the AI service for values of the visible columns based on
// text, or on the page's main content when text is empty. It returns the
// number of fields changed. On any failure the form is left untouched.
func (s *Session) AutoFill(ctx context.Context, text string) (int, error) {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	if s.filler == nil {
		s.mu.Unlock()
		return 0, ErrNoAI
	}
	if strings.TrimSpace(text) == "" {
		text = s.signals.RawContent
	}
	if strings.TrimSpace(text) == "" {
		text = s.signals.SelectedText
	}
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return 0, ErrNoContent
	}
	columns := s.visibleColumns()
	filler := s.filler
	s.activity = ActivityAIFilling
	s.mu.Unlock()
	s.notify()

	ctx, stop := s.bind(ctx)
	defer stop()
	values, err := filler.Fill(ctx, columns, text)

	s.mu.Lock()
	s.activity = ActivityIdle
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("discarding auto-fill result for closed session")
		return 0, ErrClosed
	}
	if err != nil {
		s.mu.Unlock()
		s.notify()
		return 0, err
	}
	changed := autofill.Apply(&s.form, values)
	if changed > 0 {
		s.phase = PhaseEditing
	}
	s.mu.Unlock()
	s.notify()

	s.logger.Info("auto-fill applied", "proposed", len(values), "changed", changed)
	return changed, nil
}

// visibleColumns lists the schema columns of the visible fields in
// display order. Caller holds s.mu.
func (s *Session) visibleColumns() []property.Column {
	cols := make([]property.Column, 0, len(s.form.Fields))
	for _, f := range s.form.Fields {
		if c, ok := s.schema.Column(f.Name); ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// Submit saves the form: an update when a row exists for the page, a
// create otherwise. After a successful create the session switches to
// update mode so a second submit does not duplicate the row.
func (s *Session) Submit(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	props := payload.Build(s.form.Fields)
	rowID, mode := s.rowID, s.mode
	title := s.titleText()
	s.phase = PhaseSubmitting
	s.activity = ActivitySaving
	s.mu.Unlock()
	s.notify()

	ctx, stop := s.bind(ctx)
	defer stop()

	res := Result{Action: ActionCreated}
	var err error
	if mode == ModeExisting && rowID != "" {
		res.Action = ActionUpdated
		res.RowID, err = s.store.Update(ctx, rowID, props)
	} else {
		res.RowID, err = s.store.Create(ctx, props)
	}

	s.mu.Lock()
	s.activity = ActivityIdle
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("discarding submit result for closed session")
		return Result{}, ErrClosed
	}
	if err != nil {
		s.phase = PhaseError
		s.lastErr = describe(err)
		s.mu.Unlock()
		s.notify()
		return Result{}, err
	}
	if res.RowID == "" {
		res.RowID = rowID
	}
	s.rowID = res.RowID
	s.mode = ModeExisting
	s.phase = PhaseDone
	s.lastErr = ""
	url := s.signals.URL
	s.mu.Unlock()

	s.logger.Info("row saved", "action", res.Action, "row_id", res.RowID, "fields", len(props))
	s.record(res, url, title)
	s.notify()
	return res, nil
}

// titleText returns the value of the first visible title field. Caller
// holds s.mu.
func (s *Session) titleText() string {
	for _, f := range s.form.Fields {
		if f.Type == property.TypeTitle {
			return f.Value.Text
		}
	}
	return ""
}

func (s *Session) record(res Result, url, title string) {
	if s.deps.History == nil {
		return
	}
	c := storage.Capture{
		ID:         uuid.NewString(),
		URL:        url,
		RowID:      res.RowID,
		Mode:       res.Action,
		Title:      title,
		DatabaseID: s.databaseID,
		CreatedAt:  s.deps.Clock.Now().UTC(),
	}
	if err := s.deps.History.SaveCapture(c); err != nil {
		s.logger.Warn("recording capture failed", "error", err)
	}
}

// Refresh re-fetches the schema. When it differs from the one in use the
// form is re-rendered, discarding unsaved edits. It reports whether the
// form changed.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	ctx, stop := s.bind(ctx)
	defer stop()

	schema, err := s.store.Schema(ctx)
	if err != nil {
		return false, fmt.Errorf("fetching schema: %w", err)
	}
	s.cachePut(schema)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if schema.Equal(s.schema) {
		s.mu.Unlock()
		return false, nil
	}
	if s.activity != ActivityIdle || s.phase == PhaseDone {
		s.mu.Unlock()
		return false, ErrBusy
	}
	s.schema = schema
	s.render()
	s.mu.Unlock()
	s.notify()
	return true, nil
}

func (s *Session) backgroundRefresh() {
	defer s.bg.Done()
	changed, err := s.Refresh(s.ctx)
	switch {
	case err != nil && s.ctx.Err() == nil && !errors.Is(err, ErrClosed):
		s.logger.Warn("background schema refresh failed", "error", err)
	case changed:
		s.logger.Info("schema changed, form re-rendered")
	}
}

// Close tears the session down. In-flight requests are cancelled and
// their late results discarded.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.bg.Wait()
}

// Form returns a copy of the current form.
func (s *Session) Form() form.Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.Clone()
}

// Signals returns the signals extracted at start.
func (s *Session) Signals() extract.Signals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals
}

// Payload returns what Submit would send right now.
func (s *Session) Payload() map[string]notion.PropertyValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return payload.Build(s.form.Fields)
}

// URLColumn picks the column used to find an existing row for a page: the
// explicitly configured one if it is a url column, else one named like a
// source link, else the first url column in display order. It returns ""
// when the schema has no url column.
func URLColumn(schema property.Schema, explicit string, order []string) string {
	cols := schema.ColumnsOfType(property.TypeURL)
	if len(cols) == 0 {
		return ""
	}
	if explicit != "" {
		if c, ok := schema.Column(explicit); ok && c.Type == property.TypeURL {
			return c.Name
		}
	}
	for _, c := range cols {
		if form.Classify(c.Name) == form.PurposeSourceURL {
			return c.Name
		}
	}
	for _, name := range order {
		for _, c := range cols {
			if c.Name == name && form.Classify(c.Name) != form.PurposeCompany {
				return c.Name
			}
		}
	}
	for _, c := range cols {
		if form.Classify(c.Name) != form.PurposeCompany {
			return c.Name
		}
	}
	return cols[0].Name
}

func describe(err error) string {
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) || errors.Is(err, notion.ErrNetwork) {
		return notion.Describe(err)
	}
	return err.Error()
}
