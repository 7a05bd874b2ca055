package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"mdpreview/internal/toolbar"
)

type keyMap struct {
	Save        key.Binding
	ViewEditor  key.Binding
	ViewSplit   key.Binding
	ViewPreview key.Binding
	Rename      key.Binding
	Documents   key.Binding
	New         key.Binding
	Backup      key.Binding
	CopyMD      key.Binding
	CopyHTML    key.Binding
	AutoSave    key.Binding
	Help        key.Binding
	Quit        key.Binding

	Toolbar map[toolbar.Kind]key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Save:        key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		ViewEditor:  key.NewBinding(key.WithKeys("alt+1"), key.WithHelp("alt+1", "editor")),
		ViewSplit:   key.NewBinding(key.WithKeys("alt+2"), key.WithHelp("alt+2", "split")),
		ViewPreview: key.NewBinding(key.WithKeys("alt+3"), key.WithHelp("alt+3", "preview")),
		Rename:      key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "rename")),
		Documents:   key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "documents")),
		New:         key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new")),
		Backup:      key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "load backup")),
		CopyMD:      key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy md")),
		CopyHTML:    key.NewBinding(key.WithKeys("alt+y"), key.WithHelp("alt+y", "copy html")),
		AutoSave:    key.NewBinding(key.WithKeys("alt+a"), key.WithHelp("alt+a", "auto-save")),
		Help:        key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "help")),
		Quit:        key.NewBinding(key.WithKeys("ctrl+q", "ctrl+c"), key.WithHelp("ctrl+q", "quit")),
		Toolbar: map[toolbar.Kind]key.Binding{
			toolbar.Bold:    key.NewBinding(key.WithKeys("alt+b"), key.WithHelp("alt+b", "bold")),
			toolbar.Italic:  key.NewBinding(key.WithKeys("alt+i"), key.WithHelp("alt+i", "italic")),
			toolbar.Code:    key.NewBinding(key.WithKeys("alt+c"), key.WithHelp("alt+c", "code")),
			toolbar.Heading: key.NewBinding(key.WithKeys("alt+h"), key.WithHelp("alt+h", "heading")),
			toolbar.Link:    key.NewBinding(key.WithKeys("alt+k"), key.WithHelp("alt+k", "link")),
			toolbar.List:    key.NewBinding(key.WithKeys("alt+l"), key.WithHelp("alt+l", "list")),
			toolbar.Quote:   key.NewBinding(key.WithKeys("alt+q"), key.WithHelp("alt+q", "quote")),
		},
	}
}

// ShortHelp and FullHelp implement help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Save, k.ViewSplit, k.Documents, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	tools := make([]key.Binding, 0, len(k.Toolbar))
	for _, kind := range toolbar.Kinds() {
		tools = append(tools, k.Toolbar[kind])
	}
	return [][]key.Binding{
		{k.Save, k.AutoSave, k.Rename, k.New, k.Documents, k.Backup},
		{k.ViewEditor, k.ViewSplit, k.ViewPreview, k.CopyMD, k.CopyHTML},
		tools,
		{k.Help, k.Quit},
	}
}
