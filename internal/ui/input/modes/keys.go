package modes

import "github.com/charmbracelet/bubbles/key"

// KeyMap lists the normal mode bindings. It implements help.KeyMap so the
// footer and the help screen share one source of truth.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Top       key.Binding
	Bottom    key.Binding
	Search    key.Binding
	Filter    key.Binding
	Browse    key.Binding
	Favorites key.Binding
	Favorite  key.Binding
	LoadMore  key.Binding
	Retry     key.Binding
	Refresh   key.Binding
	Detail    key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// Keys is the default key map
var Keys = KeyMap{
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	PageUp:    key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("PgUp", "page up")),
	PageDown:  key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("PgDn", "page down")),
	Top:       key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
	Bottom:    key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
	Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Filter:    key.NewBinding(key.WithKeys("F"), key.WithHelp("F", "filter")),
	Browse:    key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "browse")),
	Favorites: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "my favorites")),
	Favorite:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "favorite")),
	LoadMore:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "load more")),
	Retry:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
	Refresh:   key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),
	Detail:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
	Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:      key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Filter, k.Browse, k.Favorite, k.LoadMore, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom},
		{k.Search, k.Filter, k.Browse, k.Favorites},
		{k.Favorite, k.Detail, k.LoadMore, k.Retry, k.Refresh},
		{k.Help, k.Quit},
	}
}
