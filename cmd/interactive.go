package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/sqweek/dialog"
)

// isGUIAvailable reports whether a display is present, so the directory
// picker can be skipped outright on headless hosts (CI, SSH sessions).
func isGUIAvailable() bool {
	defer func() { recover() }()
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return false
	}
	return true
}

// guiDirectoryPicker opens a native directory selection dialog.
func guiDirectoryPicker(title string) (string, error) {
	defer func() { recover() }()
	directory, err := dialog.Directory().Title(title).Browse()
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(directory); err != nil || !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", directory)
	}
	return directory, nil
}

// promptForRootAndOutput fills in --root/--output interactively when the
// caller omitted them, trying the native picker before falling back to a
// text prompt that only rejects empty input.
func promptForRootAndOutput(useGUI bool) (root string, output string, err error) {
	if useGUI && isGUIAvailable() {
		color.New(color.FgCyan, color.Bold).Println("selecting the directory to scan...")
		root, _ = guiDirectoryPicker("Select Directory to Scan")
	}
	if root == "" {
		root, err = promptText("Directory or HTTP(S) index to scan", func(input string) error {
			if input == "" {
				return fmt.Errorf("cannot be empty")
			}
			return nil
		})
		if err != nil {
			return "", "", err
		}
	}

	output, err = promptText("CSV output path", func(input string) error {
		if input == "" {
			return fmt.Errorf("cannot be empty")
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}

	return root, output, nil
}

func promptText(label string, validate promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{Label: label, Validate: validate}
	value, err := prompt.Run()
	if err == promptui.ErrInterrupt {
		color.New(color.FgRed, color.Bold).Println("\ninterrupted")
		os.Exit(130)
	}
	return value, err
}
