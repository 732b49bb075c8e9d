package upload

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDropboxRequiresToken(t *testing.T) {
	_, err := NewDropbox("")
	require.Error(t, err)

	d, err := NewDropbox("token")
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestDropboxPutCancelledContext(t *testing.T) {
	d, err := NewDropbox("token")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.Put(ctx, "/machine2/x.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	space := files.UploadAPIError{}
	space.APIError = dropbox.APIError{ErrorSummary: "path/insufficient_space/.."}

	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"network", errors.New("dial tcp: i/o timeout"), false},
		{"insufficient space", space, true},
		{"expired token", errors.New(`{"error_summary": "expired_access_token/"}`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("/machine2/x.txt", tt.err)
			assert.Equal(t, tt.permanent, IsPermanent(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
