package cli

import (
	"bytes"
	"context"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootDispatch(t *testing.T) {
	var ran []string
	record := func(name string) func(context.Context, []string) error {
		return func(ctx context.Context, args []string) error {
			ran = append(ran, name)
			ran = append(ran, args...)
			return nil
		}
	}
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose")

	var out bytes.Buffer
	root := NewRoot("rentora", "serve", &out,
		&Command{Name: "serve", Description: "run the HTTP server", Run: record("serve")},
		&Command{Name: "jobs", Description: "queue tools", Flags: fs, Run: record("jobs")},
	)

	require.NoError(t, root.Execute(context.Background(), nil))
	require.NoError(t, root.Execute(context.Background(), []string{"jobs", "-v", "stats"}))
	assert.Equal(t, []string{"serve", "jobs", "stats"}, ran)
	assert.True(t, *verbose)

	err := root.Execute(context.Background(), []string{"migrate"})
	assert.ErrorContains(t, err, "unknown command")
	assert.Contains(t, out.String(), "run the HTTP server")
}
