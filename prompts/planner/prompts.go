// Package planner embeds the prompt templates sent to the planner model.
package planner

import _ "embed"

//go:embed decide_system.md
var decideSystem string

//go:embed decide_user.md
var decideUser string

//go:embed compose_system.md
var composeSystem string

//go:embed compose_user.md
var composeUser string

// Prompt names.
const (
	DecideSystem  = "decide_system"
	DecideUser    = "decide_user"
	ComposeSystem = "compose_system"
	ComposeUser   = "compose_user"
)

var promptMap = map[string]string{
	DecideSystem:  decideSystem,
	DecideUser:    decideUser,
	ComposeSystem: composeSystem,
	ComposeUser:   composeUser,
}

// Get returns the embedded template with the given name, or "" if unknown.
func Get(name string) string {
	return promptMap[name]
}

// Names lists every embedded template.
func Names() []string {
	return []string{DecideSystem, DecideUser, ComposeSystem, ComposeUser}
}
