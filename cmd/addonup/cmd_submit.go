package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/addonvalidator/internal/config"
	"github.com/JonMunkholm/addonvalidator/internal/core"
	"github.com/JonMunkholm/addonvalidator/internal/gate"
	"github.com/JonMunkholm/addonvalidator/internal/logging"
	"github.com/JonMunkholm/addonvalidator/internal/poll"
	"github.com/JonMunkholm/addonvalidator/internal/submit"
)

var (
	// ErrServiceRejected is returned when the service refuses the upload.
	ErrServiceRejected = errors.New("the validator did not accept the upload")

	// ErrValidationFailed is returned by submit --wait when the package has
	// errors or was rejected.
	ErrValidationFailed = errors.New("validation failed")
)

var waitFlag bool

// submitCmd uploads a package
var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Upload a package to the validator",
	Long: `Upload a package to the validator and print its status page URL.

With content access the package is read into memory and sent to the
service's ajax endpoint; otherwise it is posted like the plain HTML form.
With --wait the job is followed until the result is available.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().BoolVarP(&waitFlag, "wait", "w", false, "Wait for the validation result")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	cfg := clientCfg
	out := cmd.OutOrStdout()
	path := args[0]

	presenter := gate.NewTextPresenter(cmd.ErrOrStderr())
	g := checkFile(ctx, cfg, presenter, path)

	client := newClient(cfg)
	statusURL, err := upload(ctx, cfg, client, presenter, path, g)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "status: %s\n", statusURL)

	if !waitFlag && !cfg.Wait {
		return nil
	}

	p := poll.New(client)
	p.Interval = cfg.PollInterval
	p.OnStatus = func(status string) {
		logging.FromContext(ctx).Info("validation in progress", "status", status)
	}
	resultURL, err := p.Run(ctx, statusURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "result: %s\n", resultURL)

	result, err := fetchResult(ctx, client, resultURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s, %d errors, %d warnings, %d notices\n",
		result.FileName, result.TypeLabel(), result.Errors, result.Warnings, result.Infos)
	if result.Rejected || !result.Success {
		return ErrValidationFailed
	}
	return nil
}

// upload submits path with the strategy the configuration selects and
// returns the absolute status page URL.
func upload(ctx context.Context, cfg *config.ClientConfig, client *http.Client, p gate.Presenter, path string, g gate.SubmissionGate) (string, error) {
	form, err := submit.FetchForm(ctx, client, cfg.UploadPageURL(), gate.NewFileSource(path))
	if err != nil {
		return "", err
	}

	sub := submit.New(submit.Capabilities{ContentAccess: cfg.ContentAccess}, submit.Deps{
		Client:    client,
		Presenter: p,
	})

	if sub.Submit(ctx, form, g) {
		dest, err := submit.NativePost(ctx, client, form)
		if err != nil {
			return "", err
		}
		return checkDestination(dest)
	}

	if !g.Allowed {
		return "", fmt.Errorf("%w: %s (%s)", ErrRejected, path, g.Reason)
	}

	async, ok := sub.(*submit.AsyncSubmitter)
	if !ok {
		return "", ErrRejected
	}
	outcome := async.Wait()
	switch outcome.State {
	case submit.StateSuccessRedirect:
		return outcome.RedirectURL, nil
	case submit.StateSuccessNoop:
		return "", ErrServiceRejected
	default:
		return "", fmt.Errorf("upload failed (%s): %w", outcome.State, outcome.Err)
	}
}

// checkDestination tells a status page from a redirect back to the form.
func checkDestination(dest string) (string, error) {
	u, err := url.Parse(dest)
	if err != nil {
		return "", fmt.Errorf("parse redirect: %w", err)
	}
	if hint := u.Query().Get("error"); hint != "" {
		return "", fmt.Errorf("%w (%s)", ErrServiceRejected, hint)
	}
	return dest, nil
}

func fetchResult(ctx context.Context, client *http.Client, resultURL string) (*core.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch result: %w: %d", submit.ErrUnexpectedStatus, resp.StatusCode)
	}

	var r core.Result
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}
