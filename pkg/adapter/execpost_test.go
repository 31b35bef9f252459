package adapter

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrowhq/burrow/pkg/types"
)

func TestExecPosterPassesSessionPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	script := filepath.Join(t.TempDir(), "post.sh")
	body := "#!/bin/sh\ntest -n \"$BURROW_SESSION_PATH\"\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	post := NewExecPoster(script, "/home/u/.sessions/linkedin.json")
	assert.NoError(t, post(context.Background(), "hello"))

	bare := NewExecPoster(script, "")
	err := bare(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, types.KindTransient, types.KindOf(err))
}

func TestExecPosterMissingCommandIsPermanent(t *testing.T) {
	post := NewExecPoster("burrow-no-such-post-cmd", "")
	err := post(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, types.KindPermanent, types.KindOf(err))
}
