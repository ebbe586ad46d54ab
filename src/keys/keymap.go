package keys

import "runtime"

// Keymap holds every chord the automation sends, in sequence notation.
// It is resolved once per process for the host OS.
type Keymap struct {
	Paste            string `yaml:"paste"`
	Copy             string `yaml:"copy"`
	SelectAll        string `yaml:"select_all"`
	SelectStart      string `yaml:"select_start"`
	SelectToEnd      string `yaml:"select_to_end"`
	Commit           string `yaml:"commit"`
	LineBreak        string `yaml:"line_break"`
	FocusChat        string `yaml:"focus_chat"`
	ClearInput       string `yaml:"clear_input"`
	AcceptSuggestion string `yaml:"accept_suggestion"`
	CloseDocument    string `yaml:"close_document"`
	CommandPalette   string `yaml:"command_palette"`
	CloseWindow      string `yaml:"close_window"`
	// DialogAccelerator triggers the "don't save" button by its mnemonic.
	DialogAccelerator string `yaml:"dialog_accelerator"`
	// DialogNavigate moves from the default button to "don't save" and commits.
	DialogNavigate string `yaml:"dialog_navigate"`
}

func windowsKeymap() Keymap {
	return Keymap{
		Paste:             "^v",
		Copy:              "^c",
		SelectAll:         "^a",
		SelectStart:       "^{HOME}",
		SelectToEnd:       "+^{END}",
		Commit:            "{ENTER}",
		LineBreak:         "+{ENTER}",
		FocusChat:         "^%i",
		ClearInput:        "^l",
		AcceptSuggestion:  "{TAB}",
		CloseDocument:     "^w",
		CommandPalette:    "^+p",
		CloseWindow:       "%{F4}",
		DialogAccelerator: "%n",
		DialogNavigate:    "{RIGHT}{ENTER}",
	}
}

// ForOS returns the default keymap for goos ("windows", "linux", "darwin").
// Unknown values get the Windows map.
func ForOS(goos string) Keymap {
	km := windowsKeymap()
	switch goos {
	case "linux":
		km.DialogNavigate = "{LEFT}{LEFT}{ENTER}"
	case "darwin":
		km.Paste = "#v"
		km.Copy = "#c"
		km.SelectAll = "#a"
		km.SelectStart = "#{UP}"
		km.SelectToEnd = "+#{DOWN}"
		km.FocusChat = "^#i"
		km.ClearInput = "#l"
		km.CloseDocument = "#w"
		km.CommandPalette = "#+p"
		km.CloseWindow = "#q"
		km.DialogAccelerator = "#{DEL}"
		km.DialogNavigate = "{ENTER}"
	}
	return km
}

// Host returns the keymap for the running OS.
func Host() Keymap { return ForOS(runtime.GOOS) }

// Merge returns km with every non-empty field of override applied.
func (km Keymap) Merge(override Keymap) Keymap {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&km.Paste, override.Paste)
	set(&km.Copy, override.Copy)
	set(&km.SelectAll, override.SelectAll)
	set(&km.SelectStart, override.SelectStart)
	set(&km.SelectToEnd, override.SelectToEnd)
	set(&km.Commit, override.Commit)
	set(&km.LineBreak, override.LineBreak)
	set(&km.FocusChat, override.FocusChat)
	set(&km.ClearInput, override.ClearInput)
	set(&km.AcceptSuggestion, override.AcceptSuggestion)
	set(&km.CloseDocument, override.CloseDocument)
	set(&km.CommandPalette, override.CommandPalette)
	set(&km.CloseWindow, override.CloseWindow)
	set(&km.DialogAccelerator, override.DialogAccelerator)
	set(&km.DialogNavigate, override.DialogNavigate)
	return km
}
