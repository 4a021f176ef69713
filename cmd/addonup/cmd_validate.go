package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/addonvalidator/internal/config"
	"github.com/JonMunkholm/addonvalidator/internal/gate"
	"github.com/JonMunkholm/addonvalidator/internal/logging"
)

// ErrRejected is returned when the local checks keep submission closed.
var ErrRejected = errors.New("file cannot be submitted")

// validateCmd runs the local checks only
var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a file locally without uploading it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	presenter := gate.NewTextPresenter(cmd.OutOrStdout())
	g := checkFile(cmdContext(cmd), clientCfg, presenter, args[0])
	if !g.Allowed {
		return fmt.Errorf("%w: %s (%s)", ErrRejected, args[0], g.Reason)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", args[0])
	return nil
}

// checkFile runs the selection rules for path and waits for the content
// sniff to settle.
func checkFile(ctx context.Context, cfg *config.ClientConfig, p gate.Presenter, path string) gate.SubmissionGate {
	v := gate.NewValidator(p)
	var src gate.ContentSource
	if cfg.ContentAccess {
		src = gate.NewFileSource(path)
	}
	v.Validate(ctx, filepath.Base(path), src)
	g := v.Wait()

	cand := v.Candidate()
	logging.FromContext(ctx).Debug("file checked",
		"file", cand.Filename,
		"size_known", cand.SizeBytesKnown,
		"size", cand.Size,
		"leading", fmt.Sprintf("%q", cand.LeadingBytes),
		"gate", g.Reason.String(),
	)
	return g
}
