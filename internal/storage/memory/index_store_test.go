package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexStoreAppendAtOffset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewIndexStore("J1", "J2")

	require.NoError(t, store.AppendIdentifiers(ctx, 2, []string{"J3"}))
	rows, err := store.LoadIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"J1", "J2", "J3"}, rows)

	require.NoError(t, store.AppendIdentifiers(ctx, 2, []string{"J3", "J4"}))
	rows, err = store.LoadIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"J1", "J2", "J3", "J4"}, rows)

	require.NoError(t, store.AppendIdentifiers(ctx, 6, []string{"J7"}))
	rows, err = store.LoadIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"J1", "J2", "J3", "J4", "", "", "J7"}, rows)

	require.Error(t, store.AppendIdentifiers(ctx, -1, nil))
}
