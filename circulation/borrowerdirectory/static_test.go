package borrowerdirectory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/borrowerdirectory"
)

func Test_Static_Get(t *testing.T) {
	// arrange
	ctx := context.Background()
	known := circulation.Borrower{ID: uuid.New(), Active: true, DisplayName: "Ada"}
	directory := borrowerdirectory.NewStatic(known)

	// act
	found, err := directory.Get(ctx, known.ID)
	_, missingErr := directory.Get(ctx, uuid.New())

	// assert
	require.NoError(t, err)
	assert.Equal(t, known, found)
	assert.ErrorIs(t, missingErr, circulation.ErrNotFound)
}

func Test_Static_Put_ReplacesBorrower(t *testing.T) {
	ctx := context.Background()
	b := circulation.Borrower{ID: uuid.New(), Active: true}
	directory := borrowerdirectory.NewStatic(b)

	b.Active = false
	directory.Put(b)

	found, err := directory.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, found.Active)
}
