package level

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/vec"
	"github.com/annel0/blockroll/internal/world"
)

const levelsDir = "../../assets/levels"

func TestParse_Layout(t *testing.T) {
	lvl, err := Parse([]byte(`
id: tiny
name: Tiny
layout: |
  S##
  .#E
`))
	require.NoError(t, err)

	assert.Equal(t, "tiny", lvl.ID)
	assert.Equal(t, "Tiny", lvl.Name)
	assert.Len(t, lvl.Floor, 5)
	assert.Equal(t, Point{X: 0, Z: 0}, *lvl.Start)
	assert.Equal(t, Point{X: 1, Z: 2}, *lvl.End)
}

func TestParse_OriginAndExtraFloor(t *testing.T) {
	lvl, err := Parse([]byte(`
id: offset
origin: {x: -2, z: 10}
layout: |
  S#
  #E
floor:
  - {x: 5, z: 5}
  - {x: -2, z: 10}
`))
	require.NoError(t, err)

	// Дубликат (-2,10) из списка floor схлопывается
	assert.Len(t, lvl.Floor, 5)
	assert.Equal(t, Point{X: -2, Z: 10}, *lvl.Start)
	assert.Equal(t, Point{X: -1, Z: 11}, *lvl.End)

	g, err := lvl.Grid()
	require.NoError(t, err)
	assert.Equal(t, 8, g.Rows())
	assert.Equal(t, 7, g.Cols())
	assert.True(t, g.IsWalkable(g.WorldToGrid(5, 5)))
}

func TestParse_ExplicitLists(t *testing.T) {
	lvl, err := Parse([]byte(`
id: explicit
floor:
  - {x: 0, z: 0}
  - {x: 1, z: 0}
start: {x: 0, z: 0}
end: {x: 1, z: 0}
`))
	require.NoError(t, err)
	assert.Len(t, lvl.Floor, 2)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{"no id", "layout: \"S#E\"", ErrMissingID},
		{"no floor", "id: x", ErrNoFloor},
		{"no start", "id: x\nlayout: \"##E\"", ErrMissingStart},
		{"no end", "id: x\nlayout: \"S##\"", ErrMissingEnd},
		{"two starts", "id: x\nlayout: \"S#S\"", ErrBadLayout},
		{"two ends", "id: x\nlayout: \"SEE\"", ErrBadLayout},
		{"unknown tile", "id: x\nlayout: \"S?E\"", ErrBadLayout},
		{"start off floor", "id: x\nfloor: [{x: 0, z: 0}]\nstart: {x: 3, z: 3}\nend: {x: 0, z: 0}", ErrStartNotOnFloor},
		{"end off floor", "id: x\nfloor: [{x: 0, z: 0}]\nstart: {x: 0, z: 0}\nend: {x: 3, z: 3}", ErrEndNotOnFloor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParse_OutOfRangeCoordinates(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{"far floor cell", "id: wide\nfloor: [{x: 0, z: 0}, {x: 1e15, z: 0}]\nstart: {x: 0, z: 0}\nend: {x: 0, z: 0}", world.ErrBadCoordinate},
		{"nan floor cell", "id: nan\nfloor: [{x: 0, z: 0}, {x: .nan, z: 0}]\nstart: {x: 0, z: 0}\nend: {x: 0, z: 0}", world.ErrBadCoordinate},
		{"infinite start", "id: inf\nfloor: [{x: 0, z: 0}]\nstart: {x: .inf, z: 0}\nend: {x: 0, z: 0}", world.ErrBadCoordinate},
		{"huge bounding box", "id: box\nfloor: [{x: 0, z: 0}, {x: 0, z: 2000}]\nstart: {x: 0, z: 0}\nend: {x: 0, z: 2000}", world.ErrGridTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("id: [unclosed"))
	assert.Error(t, err)
}

func TestMarshal_RoundTrip(t *testing.T) {
	lvl, err := LoadFile(filepath.Join(levelsDir, "bridge.yaml"))
	require.NoError(t, err)

	data, err := Marshal(lvl)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, lvl.ID, again.ID)
	assert.Equal(t, lvl.Name, again.Name)
	assert.ElementsMatch(t, lvl.Floor, again.Floor)
	assert.Equal(t, lvl.Start, again.Start)
	assert.Equal(t, lvl.End, again.End)
}

func TestLayout_Render(t *testing.T) {
	lvl, err := ParseLayout("S#.\n.#E\n", Point{X: 3, Z: -1})
	require.NoError(t, err)
	lvl.ID = "render"

	layout, origin := lvl.Layout()
	assert.Equal(t, "S#.\n.#E\n", layout)
	assert.Equal(t, Point{X: 3, Z: -1}, origin)
}

func TestLoadFile_Bundled(t *testing.T) {
	expected := map[string]int{
		"classic.yaml":  7,
		"corridor.yaml": 4,
		"bridge.yaml":   30,
	}

	for name, moves := range expected {
		t.Run(name, func(t *testing.T) {
			lvl, err := LoadFile(filepath.Join(levelsDir, name))
			require.NoError(t, err)

			path, err := lvl.Solve()
			require.NoError(t, err)
			assert.Len(t, path, moves)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGenerate_Solvable(t *testing.T) {
	opts := DefaultGeneratorOptions()
	opts.ID = "gen"
	opts.Seed = 1234
	opts.Threshold = 0.01

	lvl, path, err := Generate(opts)
	require.NoError(t, err)
	require.NoError(t, lvl.Validate())
	assert.GreaterOrEqual(t, len(path), opts.MinMoves)

	// Решение генератора реально приводит блок на финиш
	g, err := lvl.Grid()
	require.NoError(t, err)
	pose := entity.StandingPose(g.WorldToGrid(lvl.Start.X, lvl.Start.Z))
	for _, dir := range path {
		next, ok := entity.NextPose(g, pose, dir)
		require.True(t, ok)
		pose = next
	}
	assert.Equal(t, entity.StandingPose(g.WorldToGrid(lvl.End.X, lvl.End.Z)), pose)
}

func TestGenerate_Deterministic(t *testing.T) {
	opts := GeneratorOptions{ID: "det", Seed: 99, MaxAttempts: 64, Threshold: 0.3}

	a, _, errA := Generate(opts)
	b, _, errB := Generate(opts)
	require.Equal(t, errA, errB)
	if errA == nil {
		assert.Equal(t, a.Floor, b.Floor)
	}
}

func TestGenerate_Fails(t *testing.T) {
	_, _, err := Generate(GeneratorOptions{Seed: 1, MaxAttempts: 3, MinMoves: 10000})
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerate_ClampsSize(t *testing.T) {
	opts := GeneratorOptions{Width: 100000, Height: 100000, MaxAttempts: 1 << 30}
	opts.applyDefaults()
	assert.Equal(t, MaxGeneratedSize, opts.Width)
	assert.Equal(t, MaxGeneratedSize, opts.Height)
	assert.Equal(t, MaxAttemptsLimit, opts.MaxAttempts)

	lvl, _, err := Generate(GeneratorOptions{ID: "big", Seed: 7, Width: 100000, Height: 100000, Threshold: 0.01})
	require.NoError(t, err)
	g, err := lvl.Grid()
	require.NoError(t, err)
	assert.LessOrEqual(t, g.Rows(), MaxGeneratedSize)
	assert.LessOrEqual(t, g.Cols(), MaxGeneratedSize)
}

func TestNearPad(t *testing.T) {
	c := vec.Vec2{X: 1, Y: 1}
	assert.True(t, nearPad(vec.Vec2{X: 0, Y: 2}, c))
	assert.False(t, nearPad(vec.Vec2{X: 3, Y: 1}, c))
}
