package models

// Action selects how a magic link token is interpreted.
type Action int

const (
	// ActionLogin treats the token as an existing refresh token.
	ActionLogin Action = iota
	// ActionRegister treats the token as an activation ticket.
	ActionRegister
)

const registerLiteral = "register"

// ParseAction maps the raw action query value. Only the exact literal
// "register" selects registration; every other value means login.
func ParseAction(s string) Action {
	if s == registerLiteral {
		return ActionRegister
	}
	return ActionLogin
}

func (a Action) String() string {
	if a == ActionRegister {
		return "registration"
	}
	return "login"
}
