package aligngraph_test

import (
	"context"
	"testing"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	"github.com/grailbio/base/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopEngine struct{}

func (nopEngine) Build(context.Context, []fasta.Record, string, aligngraph.BuildOpts) (aligngraph.Graph, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	aligngraph.Register("test-nop", nopEngine{})

	e, err := aligngraph.Lookup("test-nop")
	require.NoError(t, err)
	assert.Equal(t, nopEngine{}, e)
	assert.Contains(t, aligngraph.Engines(), "test-nop")

	_, err = aligngraph.Lookup("no-such-engine")
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Unavailable, err))

	assert.Panics(t, func() { aligngraph.Register("test-nop", nopEngine{}) })
	assert.Panics(t, func() { aligngraph.Register("test-nil", nil) })
}
