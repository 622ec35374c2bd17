// Package editorlaunch is the thin boundary collaborator that shells
// out to $EDITOR, used by the orchestrator's edit round-trip (spec.md
// §4.7). It is deliberately minimal per spec.md §1's scope note: "the
// external text-editor launcher" is named as a collaborator at the
// boundary, not part of the core.
package editorlaunch

import (
	"os"
	"os/exec"

	"github.com/warrengalyen/gateway/internal/gwerr"
)

// Launch runs $EDITOR (falling back to vi) on path synchronously, with
// stdio inherited from the controlling terminal so the editor can take
// over the screen. It returns once the editor process exits.
func Launch(path string) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return gwerr.Wrap(err, gwerr.IoErr, "launching editor "+editor)
	}
	return nil
}
