package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"go.uber.org/zap"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/db"
	"github.com/jwulff/sensorlog/internal/export"
	"github.com/jwulff/sensorlog/internal/prefs"
	"github.com/jwulff/sensorlog/internal/recorder"
	"github.com/jwulff/sensorlog/internal/sensor"

	tea "github.com/charmbracelet/bubbletea"
)

// Screen is the view currently shown.
type Screen int

const (
	ScreenRecords Screen = iota
	ScreenSensors
	ScreenRecord
	ScreenDetail
	ScreenLive
)

// field is the form input that has keyboard focus.
type field int

const (
	fieldNone field = iota
	fieldTitle
	fieldNotes
)

const tickInterval = 100 * time.Millisecond

// sensorRow is one toggleable component on the sensors screen.
type sensorRow struct {
	Kind      sensor.Kind
	Component sensor.Component
}

func sensorRows() []sensorRow {
	var rows []sensorRow
	for _, k := range sensor.All {
		for c := sensor.Component(0); int(c) < k.Components(); c++ {
			rows = append(rows, sensorRow{Kind: k, Component: c})
		}
	}
	return rows
}

// Deps are the services the TUI drives.
type Deps struct {
	Store      *db.Store
	Recorder   *recorder.Recorder
	Exporter   *export.Exporter
	Prefs      *prefs.Prefs
	Source     capture.Source
	SourceName string
	Clock      clock.Clock
	Logger     *zap.Logger
	Countdown  time.Duration
	// Rate is used when the preferences hold none.
	Rate sensor.Rate
}

// Model is the root bubbletea model for the sensorlog TUI.
type Model struct {
	ctx  context.Context
	deps Deps
	log  *zap.Logger

	screen Screen
	width  int
	height int

	// Records
	records       []db.Summary
	selected      int
	confirmDelete bool

	// Sensors
	rows         []sensorRow
	sensorCursor int
	rate         sensor.Rate

	// Live
	live       *capture.Monitor
	liveCancel context.CancelFunc

	// Record
	session  *capture.Session
	captured *capture.Buffer

	// Save form and detail editor
	title textinput.Model
	notes textarea.Model
	focus field

	// Detail
	detail    db.Record
	detailBuf *capture.Buffer
	exported  []string

	// Errors
	errorMessage   string
	errorTransient bool

	// Status
	notice string
}

// New creates a Model on the records screen.
func New(ctx context.Context, deps Deps) Model {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	title := textinput.New()
	title.Placeholder = "Title"
	title.CharLimit = 120

	notes := textarea.New()
	notes.Placeholder = "Notes"
	notes.ShowLineNumbers = false
	notes.SetHeight(4)

	return Model{
		ctx:   ctx,
		deps:  deps,
		log:   deps.Logger,
		rows:  sensorRows(),
		rate:  deps.Prefs.Rate(deps.Rate),
		title: title,
		notes: notes,
	}
}

// Init loads the record list.
func (m Model) Init() tea.Cmd {
	return loadRecordsCmd(m.ctx, m.deps.Store)
}

// loadRecordsCmd lists the saved records.
func loadRecordsCmd(ctx context.Context, store *db.Store) tea.Cmd {
	return func() tea.Msg {
		records, err := store.ListRecords(ctx)
		return RecordsLoadedMsg{Records: records, Err: err}
	}
}

// loadRecordCmd fetches and decodes one record.
func loadRecordCmd(ctx context.Context, rec *recorder.Recorder, id int64) tea.Cmd {
	return func() tea.Msg {
		r, buf, err := rec.Load(ctx, id)
		return RecordLoadedMsg{Record: r, Buffer: buf, Err: err}
	}
}

// deleteRecordCmd removes one record.
func deleteRecordCmd(ctx context.Context, store *db.Store, id int64) tea.Cmd {
	return func() tea.Msg {
		found, err := store.DeleteRecord(ctx, id)
		return RecordDeletedMsg{ID: id, Found: found, Err: err}
	}
}

// updateRecordCmd writes back an edited title and notes.
func updateRecordCmd(ctx context.Context, store *db.Store, id int64, title, notes string) tea.Cmd {
	return func() tea.Msg {
		return RecordUpdatedMsg{ID: id, Err: updateRecord(ctx, store, id, title, notes)}
	}
}

func updateRecord(ctx context.Context, store *db.Store, id int64, title, notes string) error {
	found, err := store.UpdateRecord(ctx, id, title, notes)
	if err != nil {
		return err
	}
	if !found {
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("record %d not found", id))
	}
	return nil
}

// armCmd subscribes the source and starts the countdown.
func armCmd(ctx context.Context, s *capture.Session) tea.Cmd {
	return func() tea.Msg {
		return SessionArmedMsg{Err: s.Arm(ctx)}
	}
}

// startLiveCmd subscribes the live monitor to every kind.
func startLiveCmd(ctx context.Context, mon *capture.Monitor, rate sensor.Rate) tea.Cmd {
	return func() tea.Msg {
		return LiveStartedMsg{Monitor: mon, Err: mon.Start(ctx, nil, rate)}
	}
}

// stopCmd stops the session, or interrupts it when the screen is left.
func stopCmd(s *capture.Session, interrupt bool) tea.Cmd {
	return func() tea.Msg {
		var buf *capture.Buffer
		var err error
		if interrupt {
			buf, err = s.Interrupt()
		} else {
			buf, err = s.Stop()
		}
		return SessionStoppedMsg{Buffer: buf, Err: err}
	}
}

// saveSessionCmd stores the captured buffer as a new record.
func saveSessionCmd(ctx context.Context, rec *recorder.Recorder, title, notes string, buf *capture.Buffer) tea.Cmd {
	return func() tea.Msg {
		id, err := rec.Save(ctx, title, notes, buf)
		return SessionSavedMsg{ID: id, Err: err}
	}
}

// exportCmd writes one CSV file per kind.
func exportCmd(exp *export.Exporter, createdAt time.Time, buf *capture.Buffer) tea.Cmd {
	return func() tea.Msg {
		files, err := exp.Export(createdAt, buf)
		return ExportedMsg{Files: files, Err: err}
	}
}

// savePrefsCmd persists a snapshot of the sensor preferences. Update keeps
// mutating the live Prefs while the command runs.
func savePrefsCmd(p *prefs.Prefs) tea.Cmd {
	return func() tea.Msg {
		return PrefsSavedMsg{Err: p.Save()}
	}
}

// tickCmd refreshes the record screen.
func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.title.Width = max(20, msg.Width-12)
		m.notes.SetWidth(max(20, msg.Width-4))
		return m, nil

	case RecordsLoadedMsg:
		if msg.Err != nil {
			cmd := m.setError(msg.Err, false)
			return m, cmd
		}
		m.records = msg.Records
		if m.selected >= len(m.records) {
			m.selected = max(0, len(m.records)-1)
		}
		return m, nil

	case RecordLoadedMsg:
		if msg.Record.ID == 0 {
			cmd := m.setError(msg.Err, true)
			return m, cmd
		}
		m.screen = ScreenDetail
		m.detail = msg.Record
		m.detailBuf = msg.Buffer
		m.exported = nil
		m.notice = ""
		m.title.SetValue(msg.Record.Title)
		m.notes.SetValue(msg.Record.Notes)
		m.blur()
		if msg.Err != nil {
			cmd := m.setError(msg.Err, false)
			return m, cmd
		}
		m.clearError()
		return m, nil

	case RecordDeletedMsg:
		if msg.Err != nil {
			cmd := m.setError(msg.Err, true)
			return m, cmd
		}
		if msg.Found {
			m.notice = "Record deleted"
		}
		return m, loadRecordsCmd(m.ctx, m.deps.Store)

	case RecordUpdatedMsg:
		reload := loadRecordsCmd(m.ctx, m.deps.Store)
		if msg.Err != nil {
			errCmd := m.setError(msg.Err, true)
			return m, tea.Batch(reload, errCmd)
		}
		return m, reload

	case SessionArmedMsg:
		if msg.Err != nil {
			m.log.Error("arm session", zap.Error(msg.Err))
			m.session = nil
			m.screen = ScreenRecords
			m.errorMessage = "Could not start the sensors."
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		return m, nil

	case LiveStartedMsg:
		if msg.Monitor != m.live {
			return m, nil
		}
		if msg.Err != nil {
			m.log.Error("start live monitor", zap.Error(msg.Err))
			m.stopLive()
			m.screen = ScreenRecords
			m.errorMessage = "Could not start the sensors."
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		return m, nil

	case TickMsg:
		if m.screen == ScreenRecord && m.running() {
			return m, tickCmd()
		}
		if m.screen == ScreenLive && m.live != nil {
			return m, tickCmd()
		}
		return m, nil

	case SessionStoppedMsg:
		if m.session == nil {
			return m, nil
		}
		m.captured = msg.Buffer
		m.title.SetValue("")
		m.notes.SetValue("")
		cmd := m.focusField(fieldTitle)
		if msg.Err != nil {
			errCmd := m.setError(msg.Err, true)
			return m, tea.Batch(cmd, errCmd)
		}
		return m, cmd

	case SessionSavedMsg:
		if msg.Err != nil {
			cmd := m.setError(msg.Err, false)
			return m, cmd
		}
		m.resetSession()
		m.screen = ScreenRecords
		m.selected = 0
		m.notice = fmt.Sprintf("Saved record #%d", msg.ID)
		m.clearError()
		return m, loadRecordsCmd(m.ctx, m.deps.Store)

	case ExportedMsg:
		if msg.Err != nil {
			cmd := m.setError(msg.Err, false)
			return m, cmd
		}
		m.exported = msg.Files
		m.notice = fmt.Sprintf("Exported %d files to %s", len(msg.Files), m.deps.Exporter.Dir())
		m.clearError()
		return m, nil

	case PrefsSavedMsg:
		if msg.Err != nil {
			m.log.Error("save prefs", zap.Error(msg.Err))
			m.errorMessage = "Could not save sensor preferences."
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.clearError()
		}
		return m, nil
	}

	return m.updateInputs(msg)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == KeyCtrlC {
		m.shutdown()
		return m, tea.Quit
	}

	switch m.screen {
	case ScreenSensors:
		return m.handleSensorsKey(msg)
	case ScreenRecord:
		return m.handleRecordKey(msg)
	case ScreenDetail:
		return m.handleDetailKey(msg)
	case ScreenLive:
		return m.handleLiveKey(msg)
	}
	return m.handleRecordsKey(msg)
}

func (m Model) handleRecordsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.confirmDelete {
		m.confirmDelete = false
		if key == KeyConfirm && m.selected < len(m.records) {
			return m, deleteRecordCmd(m.ctx, m.deps.Store, m.records[m.selected].ID)
		}
		return m, nil
	}

	switch key {
	case KeyQuit, KeyQuitUpper:
		return m, tea.Quit

	case KeyJ, KeyDown:
		if m.selected < len(m.records)-1 {
			m.selected++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case KeyEnter:
		if m.selected < len(m.records) {
			return m, loadRecordCmd(m.ctx, m.deps.Recorder, m.records[m.selected].ID)
		}
		return m, nil

	case KeyRecord:
		return m.startRecording()

	case KeySensors:
		m.screen = ScreenSensors
		m.notice = ""
		return m, nil

	case KeyLive:
		ctx, cancel := context.WithCancel(m.ctx)
		m.live = capture.NewMonitor(m.deps.Source, m.log)
		m.liveCancel = cancel
		m.screen = ScreenLive
		m.notice = ""
		m.clearError()
		return m, tea.Batch(startLiveCmd(ctx, m.live, m.rate), tickCmd())

	case KeyDelete:
		if m.selected < len(m.records) {
			m.confirmDelete = true
		}
		return m, nil
	}
	return m, nil
}

func (m Model) startRecording() (tea.Model, tea.Cmd) {
	s, err := capture.NewSession(m.deps.Source, m.deps.Prefs.Selections(), capture.Options{
		Countdown: m.deps.Countdown,
		Rate:      m.rate,
		Clock:     m.deps.Clock,
		Logger:    m.log,
	})
	if err != nil {
		cmd := m.setError(err, true)
		return m, cmd
	}
	m.session = s
	m.captured = nil
	m.screen = ScreenRecord
	m.notice = ""
	m.clearError()
	return m, tea.Batch(armCmd(m.ctx, s), tickCmd())
}

func (m Model) handleLiveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc, KeyQuit, KeyQuitUpper:
		m.stopLive()
		m.screen = ScreenRecords
	}
	return m, nil
}

// stopLive unsubscribes the live monitor before another screen may
// subscribe the source. Cancelling first keeps a pending start from
// subscribing afterwards.
func (m *Model) stopLive() {
	if m.live == nil {
		return
	}
	m.liveCancel()
	m.liveCancel = nil
	if err := m.live.Stop(); err != nil {
		m.log.Warn("stop live monitor", zap.Error(err))
	}
	m.live = nil
}

func (m Model) handleSensorsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc, KeyQuit, KeyQuitUpper:
		m.screen = ScreenRecords
		return m, savePrefsCmd(m.deps.Prefs.Clone())

	case KeyJ, KeyDown:
		if m.sensorCursor < len(m.rows)-1 {
			m.sensorCursor++
		}

	case KeyK, KeyUp:
		if m.sensorCursor > 0 {
			m.sensorCursor--
		}

	case KeySpace, KeyEnter:
		row := m.rows[m.sensorCursor]
		m.deps.Prefs.Toggle(row.Kind, row.Component)

	case KeyRateUp, "=":
		m.rate = m.rate.Next()
		m.deps.Prefs.SetRate(m.rate)

	case KeyRateDown:
		m.rate = m.rate.Prev()
		m.deps.Prefs.SetRate(m.rate)
	}
	return m, nil
}

func (m Model) handleRecordKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.captured == nil {
		switch key {
		case KeySpace:
			if m.running() {
				return m, stopCmd(m.session, false)
			}
		case KeyEsc:
			if m.running() {
				return m, stopCmd(m.session, true)
			}
		case KeyQuit, KeyQuitUpper:
			m.shutdown()
			return m, tea.Quit
		}
		return m, nil
	}

	switch key {
	case KeySave:
		if strings.TrimSpace(m.title.Value()) == "" {
			m.errorMessage = "A title is required."
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		return m, saveSessionCmd(m.ctx, m.deps.Recorder, m.title.Value(), m.notes.Value(), m.captured)

	case KeyTab:
		if m.focus == fieldTitle {
			cmd := m.focusField(fieldNotes)
			return m, cmd
		}
		cmd := m.focusField(fieldTitle)
		return m, cmd

	case KeyEsc:
		m.resetSession()
		m.screen = ScreenRecords
		m.notice = "Recording discarded"
		return m, nil
	}
	return m.updateInputs(msg)
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.focus != fieldNone {
		switch key {
		case KeyEsc:
			m.blur()
			return m, nil
		case KeyTab:
			if m.focus == fieldTitle {
				cmd := m.focusField(fieldNotes)
				return m, cmd
			}
			m.blur()
			return m, nil
		}
		return m.updateInputs(msg)
	}

	switch key {
	case KeyTab:
		cmd := m.focusField(fieldTitle)
		return m, cmd

	case KeyExport:
		if m.detailBuf == nil {
			cmd := m.setError(apperr.New(apperr.CodeCorruptData, "no decoded payload"), true)
			return m, cmd
		}
		return m, exportCmd(m.deps.Exporter, m.detail.CreatedAt, m.detailBuf)

	case KeyEsc, KeyQuit, KeyQuitUpper:
		m.screen = ScreenRecords
		m.notice = ""
		if m.detailChanged() {
			return m, updateRecordCmd(m.ctx, m.deps.Store, m.detail.ID, m.title.Value(), m.notes.Value())
		}
		return m, loadRecordsCmd(m.ctx, m.deps.Store)
	}
	return m, nil
}

// updateInputs forwards msg to the focused form field.
func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case fieldTitle:
		m.title, cmd = m.title.Update(msg)
	case fieldNotes:
		m.notes, cmd = m.notes.Update(msg)
	}
	return m, cmd
}

func (m *Model) focusField(f field) tea.Cmd {
	m.blur()
	m.focus = f
	switch f {
	case fieldTitle:
		return m.title.Focus()
	case fieldNotes:
		return m.notes.Focus()
	}
	return nil
}

func (m *Model) blur() {
	m.title.Blur()
	m.notes.Blur()
	m.focus = fieldNone
}

func (m *Model) resetSession() {
	m.session = nil
	m.captured = nil
	m.blur()
}

// running reports whether the session is armed or recording.
func (m Model) running() bool {
	if m.session == nil {
		return false
	}
	st := m.session.State()
	return st == capture.Armed || st == capture.Recording
}

func (m Model) detailChanged() bool {
	return m.title.Value() != m.detail.Title || m.notes.Value() != m.detail.Notes
}

// shutdown releases the source and saves pending detail edits before quit.
func (m *Model) shutdown() {
	m.stopLive()
	if m.running() {
		if _, err := m.session.Interrupt(); err != nil {
			m.log.Warn("interrupt session", zap.Error(err))
		}
	}
	if m.screen == ScreenDetail && m.detailChanged() {
		if err := updateRecord(m.ctx, m.deps.Store, m.detail.ID, m.title.Value(), m.notes.Value()); err != nil {
			m.log.Warn("save record on quit", zap.Int64("id", m.detail.ID), zap.Error(err))
		}
	}
}

// setError shows the user-facing message for err and logs the detail.
func (m *Model) setError(err error, transient bool) tea.Cmd {
	if err == nil {
		return nil
	}
	m.log.Warn("ui error", zap.Stringer("screen", m.screen), zap.Error(err))
	m.errorMessage = apperr.UserMessage(err)
	m.errorTransient = transient
	if transient {
		return clearTransientErrorCmd()
	}
	return nil
}

func (m *Model) clearError() {
	m.errorMessage = ""
	m.errorTransient = false
}

func (s Screen) String() string {
	switch s {
	case ScreenRecords:
		return "records"
	case ScreenSensors:
		return "sensors"
	case ScreenRecord:
		return "record"
	case ScreenDetail:
		return "detail"
	case ScreenLive:
		return "live"
	}
	return fmt.Sprintf("Screen(%d)", int(s))
}
