package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareTranspose(t *testing.T) {
	v, err := PrepareTranspose(Shape{2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, v.Out)

	// in = [[0 1 2] [3 4 5]] -> out = [[0 3] [1 4] [2 5]]
	got := make([]int, 6)
	for i := range got {
		got[i] = v.Offset(i)
	}
	assert.Equal(t, []int{0, 3, 1, 4, 2, 5}, got)
	assert.False(t, v.InnerContiguous())

	_, err = PrepareTranspose(Shape{2, 3}, []int{0, 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPrepareExpand(t *testing.T) {
	v, err := PrepareExpand(Shape{3, 1}, Shape{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3, 4}, v.Out)
	assert.Equal(t, 2, v.Offset(2*4))
	assert.Equal(t, 2, v.Offset(12+2*4+3))
}

func TestPrepareSlice(t *testing.T) {
	tests := []struct {
		name               string
		in                 Shape
		starts, ends, axes []int
		steps              []int
		wantOut            Shape
		wantOffsets        []int
	}{
		{"basic", Shape{4}, []int{1}, []int{3}, nil, nil, Shape{2}, []int{1, 2}},
		{"negative start", Shape{5}, []int{-2}, []int{100}, nil, nil, Shape{2}, []int{3, 4}},
		{"step 2", Shape{6}, []int{0}, []int{6}, nil, []int{2}, Shape{3}, []int{0, 2, 4}},
		{"reverse", Shape{4}, []int{-1}, []int{-100}, nil, []int{-1}, Shape{4}, []int{3, 2, 1, 0}},
		{"axis 1", Shape{2, 3}, []int{1}, []int{3}, []int{1}, nil, Shape{2, 2}, []int{1, 2, 4, 5}},
		{"empty", Shape{4}, []int{3}, []int{1}, nil, nil, Shape{0}, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PrepareSlice(tt.in, tt.starts, tt.ends, tt.axes, tt.steps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, plan.Out)
			got := make([]int, plan.Out.NumElements())
			for i := range got {
				got[i] = plan.Offset(i)
			}
			assert.Equal(t, tt.wantOffsets, got)
		})
	}
}

func TestPrepareSlice_FastPath(t *testing.T) {
	plan, err := PrepareSlice(Shape{4, 5}, []int{1, 1}, []int{3, 4}, nil, nil)
	require.NoError(t, err)
	assert.True(t, plan.InnerContiguous())
	assert.Equal(t, 3, plan.InnerLength())
	assert.Equal(t, 6, plan.StridedStart())
	assert.Equal(t, []int{5, 1}, plan.StridedSteps())
	assert.Equal(t, 11, plan.RowOffset(1))
}

func TestPrepareSlice_Errors(t *testing.T) {
	_, err := PrepareSlice(Shape{4}, []int{0}, []int{4}, nil, []int{0})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = PrepareSlice(Shape{4}, []int{0, 1}, []int{4}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = PrepareSlice(Shape{4, 4}, []int{0, 0}, []int{1, 1}, []int{1, -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPadPlan_MapCoord(t *testing.T) {
	// Input axis of length 3: [a b c], padded by 2 on both sides.
	tests := []struct {
		mode PadMode
		want []int
	}{
		{PadEdge, []int{0, 0, 0, 1, 2, 2, 2}},
		{PadWrap, []int{1, 2, 0, 1, 2, 0, 1}},
		{PadReflect, []int{2, 1, 0, 1, 2, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			plan, err := PreparePad(Shape{3}, []int{2, 2}, tt.mode)
			require.NoError(t, err)
			require.Equal(t, Shape{7}, plan.Out)
			got := make([]int, 7)
			for c := range got {
				i, ok := plan.MapCoord(0, c)
				require.True(t, ok)
				got[c] = i
			}
			assert.Equal(t, tt.want, got)
		})
	}

	plan, err := PreparePad(Shape{3}, []int{1, 0}, PadConstant)
	require.NoError(t, err)
	_, ok := plan.MapCoord(0, 0)
	assert.False(t, ok)
}

func TestPadPlan_RowSource(t *testing.T) {
	plan, err := PreparePad(Shape{2, 3}, []int{1, 0, 0, 1}, PadConstant)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 4}, plan.Out)

	_, ok := plan.RowSource(0)
	assert.False(t, ok)
	off, ok := plan.RowSource(2)
	assert.True(t, ok)
	assert.Equal(t, 3, off)
}

func TestPreparePad_Errors(t *testing.T) {
	_, err := PreparePad(Shape{3}, []int{-1, 0}, PadConstant)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = PreparePad(Shape{3}, []int{1}, PadConstant)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = PreparePad(Shape{0}, []int{1, 1}, PadReflect)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
