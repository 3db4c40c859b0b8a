package domain

// Preferences Model
type Preferences struct {
	Theme string `json:"theme"` // Free-form UI theme name
	Mute  string `json:"mute"`  // String-typed boolean, "True" or "False"
}

// DefaultPreferences returns the preferences used for an identity that
// never set any
func DefaultPreferences() Preferences {
	return Preferences{Theme: "blue", Mute: "False"}
}

// Values lists the preference values in their canonical order, theme
// first, matching what the polling clients render
func (p Preferences) Values() []string {
	return []string{p.Theme, p.Mute}
}
