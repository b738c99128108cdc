package domain

// Template holds placeholder content plus the variable list the renderer
// must enforce. Invariant: every `{name}` placeholder appearing in Content
// must be present in Variables.
type Template struct {
	ID        string   `json:"id" db:"id"`
	Channel   string   `json:"channel" db:"channel"`
	Locale    string   `json:"locale" db:"locale"`
	Content   string   `json:"content" db:"content"`
	Variables []string `json:"variables" db:"variables"`
}
