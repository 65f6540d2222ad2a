package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"row", Shape{1, 5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"rank pad", Shape{5}, Shape{2, 3, 5}, Shape{2, 3, 5}, true, false},
		{"scalar", Shape{}, Shape{4}, Shape{4}, true, false},
		{"both sides", Shape{2, 1, 3}, Shape{1, 4, 3}, Shape{2, 4, 3}, true, false},
		{"zero dim", Shape{0, 1}, Shape{1, 3}, Shape{0, 3}, true, false},
		{"mismatch", Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrShapeMismatch))
				var se *ShapeError
				assert.True(t, errors.As(err, &se))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestBroadcastShapes_RankLimit(t *testing.T) {
	_, _, err := BroadcastShapes(Shape{1, 1, 1, 1, 1, 1, 1, 1, 1}, Shape{1})
	assert.ErrorIs(t, err, ErrRankTooLarge)
}

func TestPrepareBroadcast_Strides(t *testing.T) {
	plan, err := PrepareBroadcast(Shape{2, 1, 3}, Shape{1, 4, 3})
	require.NoError(t, err)

	assert.Equal(t, Shape{2, 4, 3}, plan.Out)
	assert.Equal(t, []int{12, 3, 1}, plan.OutStrides)
	assert.Equal(t, []int{3, 0, 1}, plan.Strides[0])
	assert.Equal(t, []int{0, 3, 1}, plan.Strides[1])
	assert.False(t, plan.IsIdentity(0))
	assert.Equal(t, 2, plan.Operands())
}

// [2,1,3] + [1,4,3] with A = 1..6 and B = 0 repeats each row of A
// over the middle axis.
func TestPrepareBroadcast_MiddleAxis(t *testing.T) {
	plan, err := PrepareBroadcast(Shape{2, 1, 3}, Shape{1, 4, 3})
	require.NoError(t, err)

	a := []float32{1, 2, 3, 4, 5, 6}
	out := make([]float32, plan.Out.NumElements())
	for i := range out {
		out[i] = a[plan.Offset(0, i)] + 0
	}

	want := []float32{
		1, 2, 3, 1, 2, 3, 1, 2, 3, 1, 2, 3,
		4, 5, 6, 4, 5, 6, 4, 5, 6, 4, 5, 6,
	}
	assert.Equal(t, want, out)
}

func TestBroadcastPlan_Merge(t *testing.T) {
	cases := [][]Shape{
		{{2, 3, 4}, {2, 3, 4}},
		{{2, 1, 3}, {1, 4, 3}},
		{{4, 1, 1, 5}, {4, 2, 3, 5}},
		{{1, 6, 1}, {2, 6, 7}},
		{{3, 1}, {1}},
		{{2, 3, 4}, {4}, {2, 1, 1}},
	}

	for _, shapes := range cases {
		plan, err := PrepareBroadcast(shapes...)
		require.NoError(t, err)
		merged := plan.Merge()

		assert.LessOrEqual(t, merged.Out.Rank(), plan.Out.Rank())
		assert.Equal(t, plan.Out.NumElements(), merged.Out.NumElements())
		for i := 0; i < plan.Out.NumElements(); i++ {
			for op := range shapes {
				require.Equal(t, plan.Offset(op, i), merged.Offset(op, i),
					"shapes %v operand %d flat %d", shapes, op, i)
			}
		}
	}
}

func TestBroadcastPlan_MergeContiguous(t *testing.T) {
	plan, err := PrepareBroadcast(Shape{2, 3, 4}, Shape{2, 3, 4})
	require.NoError(t, err)
	merged := plan.Merge()
	assert.Equal(t, Shape{24}, merged.Out)
}
