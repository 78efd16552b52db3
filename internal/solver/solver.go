package solver

import (
	"errors"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/vec"
	"github.com/annel0/blockroll/internal/world"
)

// ErrUnsolvable - от старта нельзя дойти стоя до финиша
var ErrUnsolvable = errors.New("solver: end cell is unreachable")

type node struct {
	pose   entity.Pose
	parent int
	dir    entity.Direction
}

// Solve ищет кратчайшую последовательность ходов от стоячей позы на start
// до стоячей позы на end (индексы сетки). Поиск в ширину по позам.
func Solve(g *world.Grid, start, end vec.Vec2) ([]entity.Direction, error) {
	if !g.IsWalkable(start) || !g.IsWalkable(end) {
		return nil, ErrUnsolvable
	}

	origin := entity.StandingPose(start)
	if start == end {
		return []entity.Direction{}, nil
	}

	nodes := []node{{pose: origin, parent: -1}}
	visited := map[entity.Pose]struct{}{origin: {}}

	for i := 0; i < len(nodes); i++ {
		cur := nodes[i].pose
		for _, dir := range entity.Directions {
			next, ok := entity.NextPose(g, cur, dir)
			if !ok {
				continue
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			nodes = append(nodes, node{pose: next, parent: i, dir: dir})

			if next.Standing() && next.A == end {
				return unwind(nodes, len(nodes)-1), nil
			}
		}
	}

	return nil, ErrUnsolvable
}

func unwind(nodes []node, i int) []entity.Direction {
	var path []entity.Direction
	for ; nodes[i].parent >= 0; i = nodes[i].parent {
		path = append(path, nodes[i].dir)
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}

// Reachable возвращает число поз, достижимых от стоячей позы на start
func Reachable(g *world.Grid, start vec.Vec2) int {
	if !g.IsWalkable(start) {
		return 0
	}
	origin := entity.StandingPose(start)
	queue := []entity.Pose{origin}
	visited := map[entity.Pose]struct{}{origin: {}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dir := range entity.Directions {
			next, ok := entity.NextPose(g, cur, dir)
			if !ok {
				continue
			}
			if _, seen := visited[next]; !seen {
				visited[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}
	return len(visited)
}
