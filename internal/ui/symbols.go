package ui

// Status symbols for line-oriented output.
const (
	SymbolSuccess  = "✓"
	SymbolFail     = "✗"
	SymbolPending  = "○"
	SymbolProgress = "◐"
	SymbolOnline   = "●"
	SymbolOffline  = "◌"
	SymbolLocked   = "⚿"
	SymbolPaused   = "‖"
	SymbolSkipped  = "⊘"
)
