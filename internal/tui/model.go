// Package tui renders one live view in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"servidores/api/internal/liveview"
	"servidores/api/internal/search"
	"servidores/api/internal/store"
)

// Panel is the part of a liveview.View the terminal drives.
type Panel interface {
	Snapshot() liveview.Snapshot
	Updates() <-chan struct{}
	Refresh(quiet bool)
	Select(ctx context.Context, itemID string) error
	Submit(ctx context.Context, itemID string, outcome store.Outcome, notes string) error
}

// Finder is a debounced people search.
type Finder interface {
	Type(query string)
	Results() <-chan search.Results
}

const actionTimeout = 20 * time.Second

type snapshotMsg struct{ snap liveview.Snapshot }

type resultsMsg struct{ results search.Results }

type actionMsg struct {
	label string
	err   error
}

type tickMsg time.Time

type Model struct {
	panel  Panel
	finder Finder
	styles Styles

	snap      liveview.Snapshot
	cursor    int
	searching bool
	input     textinput.Model
	results   search.Results
	status    string
	width     int
}

func New(panel Panel, finder Finder) Model {
	in := textinput.New()
	in.Placeholder = "Buscar por nombre, teléfono o cédula..."
	in.CharLimit = 80
	in.Width = 50
	return Model{
		panel:  panel,
		finder: finder,
		styles: DefaultStyles(),
		snap:   panel.Snapshot(),
		input:  in,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.waitForResults(), tick())
}

func (m Model) waitForUpdate() tea.Cmd {
	panel := m.panel
	return func() tea.Msg {
		if _, ok := <-panel.Updates(); !ok {
			return nil
		}
		return snapshotMsg{snap: panel.Snapshot()}
	}
}

func (m Model) waitForResults() tea.Cmd {
	if m.finder == nil {
		return nil
	}
	finder := m.finder
	return func() tea.Msg {
		r, ok := <-finder.Results()
		if !ok {
			return nil
		}
		return resultsMsg{results: r}
	}
}

// tick re-reads the snapshot so annotations fade without a state change.
func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(10, msg.Width-4)
		return m, nil
	case snapshotMsg:
		m.setSnapshot(msg.snap)
		return m, m.waitForUpdate()
	case tickMsg:
		m.setSnapshot(m.panel.Snapshot())
		return m, tick()
	case resultsMsg:
		m.results = msg.results
		return m, m.waitForResults()
	case actionMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s: %v", msg.label, msg.err)
		} else {
			m.status = msg.label
		}
		return m, nil
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updatePanel(msg)
	}
	return m, nil
}

func (m *Model) setSnapshot(snap liveview.Snapshot) {
	m.snap = snap
	if m.cursor >= len(snap.Items) {
		m.cursor = max(0, len(snap.Items)-1)
	}
}

func (m Model) current() (liveview.PendingItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Items) {
		return liveview.PendingItem{}, false
	}
	return m.snap.Items[m.cursor], true
}

func (m Model) updatePanel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, m.selectCurrent()
	case "down", "j":
		if m.cursor < len(m.snap.Items)-1 {
			m.cursor++
		}
		return m, m.selectCurrent()
	case "r":
		m.panel.Refresh(false)
		m.status = "Actualizando..."
		return m, nil
	case "/":
		if m.finder == nil {
			return m, nil
		}
		m.searching = true
		return m, m.input.Focus()
	case "1", "2", "3", "4", "5", "6":
		outcome := store.Outcomes()[int(msg.String()[0]-'1')]
		item, ok := m.current()
		if !ok {
			m.status = "No hay personas pendientes"
			return m, nil
		}
		m.status = fmt.Sprintf("Guardando %q para %s...", outcome.Label(), item.Name)
		return m, m.submit(item, outcome)
	}
	return m, nil
}

func (m Model) selectCurrent() tea.Cmd {
	item, ok := m.current()
	if !ok {
		return nil
	}
	panel := m.panel
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := panel.Select(ctx, item.ItemID); err != nil {
			return actionMsg{label: "Seleccionar", err: err}
		}
		return nil
	}
}

func (m Model) submit(item liveview.PendingItem, outcome store.Outcome) tea.Cmd {
	panel := m.panel
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := panel.Submit(ctx, item.ItemID, outcome, "")
		if err != nil {
			return actionMsg{label: "No se pudo guardar", err: err}
		}
		return actionMsg{label: fmt.Sprintf("%s: %s", item.Name, outcome.Label())}
	}
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.searching = false
		m.input.Blur()
		m.input.SetValue("")
		m.results = search.Results{}
		return m, nil
	}
	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.finder.Type(value)
	}
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Servidores · llamadas pendientes"))
	b.WriteString("\n")
	if m.snap.HasScope {
		b.WriteString(m.styles.Muted.Render(m.snap.Scope.String()))
	} else {
		b.WriteString(m.styles.Muted.Render("sin asignación vigente"))
	}
	if m.snap.Loading {
		b.WriteString(m.styles.Muted.Render("  cargando..."))
	}
	b.WriteString("\n\n")

	for _, fe := range m.snap.FetchErrors {
		b.WriteString(m.styles.Error.Render(fe.Error()))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Header.Render(fmt.Sprintf("Pendientes (%d)", len(m.snap.Items))))
	b.WriteString("\n")
	for i, item := range m.snap.Items {
		b.WriteString(m.renderItem(i, item))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Header.Render(fmt.Sprintf("Confirmados (%d)", len(m.snap.Confirmed))))
	b.WriteString("\n")
	for _, c := range m.snap.Confirmed {
		fmt.Fprintf(&b, "  %s %s\n", c.Name, m.styles.Muted.Render(c.Contact))
	}

	if m.searching {
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(m.renderResults())
	}

	if m.snap.ActionError != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(m.snap.ActionError.Error()))
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render(help()))
	return b.String()
}

func (m Model) renderItem(i int, item liveview.PendingItem) string {
	prefix := "  "
	if i == m.cursor {
		prefix = m.styles.Cursor.Render("> ")
	}
	line := item.Name
	if item.Contact != "" {
		line += " " + m.styles.Muted.Render(item.Contact)
	}
	var previous []string
	for _, o := range item.Outcomes {
		if o != "" {
			previous = append(previous, o.Label())
		}
	}
	if len(previous) > 0 {
		line += m.styles.Muted.Render(" [" + strings.Join(previous, ", ") + "]")
	}
	switch item.Annotation {
	case liveview.AnnotationNew:
		line += " " + m.styles.New.Render("nuevo")
	case liveview.AnnotationChanged:
		line += " " + m.styles.Changed.Render("actualizado")
	}
	if item.ItemID == m.snap.Selected {
		line = m.styles.Selected.Render(line)
	}
	return prefix + line
}

func (m Model) renderResults() string {
	r := m.results
	switch {
	case r.Err != nil:
		return m.styles.Error.Render(r.Err.Error()) + "\n"
	case r.Query == "":
		return ""
	case len(r.People) == 0:
		return m.styles.Muted.Render("sin resultados") + "\n"
	}
	var b strings.Builder
	for _, p := range r.People {
		fmt.Fprintf(&b, "  %s %s %s\n", p.Name, m.styles.Muted.Render(p.Contact), m.styles.Muted.Render(p.StageLabel))
	}
	return b.String()
}

func help() string {
	labels := make([]string, 0, len(store.Outcomes()))
	for i, o := range store.Outcomes() {
		labels = append(labels, fmt.Sprintf("%d %s", i+1, o.Label()))
	}
	return "↑/↓ mover · " + strings.Join(labels, " · ") + " · r actualizar · / buscar · q salir"
}
