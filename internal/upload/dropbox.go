package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
)

// Dropbox stores files in a Dropbox app folder.
type Dropbox struct {
	client files.Client
}

// NewDropbox returns a Dropbox storage authenticated with token.
func NewDropbox(token string) (*Dropbox, error) {
	if token == "" {
		return nil, errors.New("dropbox: no access token")
	}
	return &Dropbox{
		client: files.New(dropbox.Config{Token: token, LogLevel: dropbox.LogOff}),
	}, nil
}

// Put uploads content to remotePath in "add" mode, so an existing file is
// never overwritten.
func (d *Dropbox) Put(ctx context.Context, remotePath string, content io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	arg := files.NewUploadArg(remotePath)
	arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeAdd}}

	if _, err := d.client.Upload(arg, content); err != nil {
		return classify(remotePath, err)
	}
	return nil
}

// classify marks errors that a retry cannot fix.
func classify(path string, err error) error {
	err = fmt.Errorf("dropbox upload %s: %w", path, err)

	var apiErr files.UploadAPIError
	if errors.As(err, &apiErr) {
		switch {
		case strings.Contains(apiErr.ErrorSummary, "insufficient_space"),
			strings.Contains(apiErr.ErrorSummary, "conflict"),
			strings.Contains(apiErr.ErrorSummary, "malformed_path"):
			return Permanent(err)
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "invalid_access_token") || strings.Contains(msg, "expired_access_token") {
		return Permanent(err)
	}
	return err
}
