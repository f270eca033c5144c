package game

import (
	"errors"
	"fmt"
	"strings"

	"github.com/itray25/neogen/internal/proto"
)

// Terrain classifies a map tile.
type Terrain int

const (
	// TerrainPlain is unclaimed open land, wire token "w".
	TerrainPlain Terrain = iota
	// TerrainTerritory is player-held land, wire token "t".
	TerrainTerritory
	// TerrainMountain is impassable, wire token "m".
	TerrainMountain
	// TerrainThrone is a player's home tile, wire token "g".
	TerrainThrone
	// TerrainFog is outside the player's vision, wire token "v".
	TerrainFog
	// TerrainCity is a capturable city, wire token "c_<kind>".
	TerrainCity
)

func (t Terrain) String() string {
	switch t {
	case TerrainPlain:
		return "plain"
	case TerrainTerritory:
		return "territory"
	case TerrainMountain:
		return "mountain"
	case TerrainThrone:
		return "throne"
	case TerrainFog:
		return "fog"
	case TerrainCity:
		return "city"
	default:
		return fmt.Sprintf("terrain(%d)", int(t))
	}
}

// ParseTerrain maps a wire terrain token to its kind, returning the city kind
// ("settlement", "smallcity", "largecity") for city tokens. Unrecognized
// tokens are treated as fog so the tile stays inert.
func ParseTerrain(token string) (Terrain, string) {
	if kind, ok := strings.CutPrefix(token, "c_"); ok {
		return TerrainCity, kind
	}
	switch token {
	case "w":
		return TerrainPlain, ""
	case "t":
		return TerrainTerritory, ""
	case "m":
		return TerrainMountain, ""
	case "g":
		return TerrainThrone, ""
	case "v":
		return TerrainFog, ""
	default:
		return TerrainFog, ""
	}
}

// Tile is one cell of the visible map.
type Tile struct {
	X         int
	Y         int
	Terrain   Terrain
	CityKind  string
	Units     int
	Owner     string
	HasVision bool
}

// Impassable reports whether units can never enter the tile.
func (t Tile) Impassable() bool {
	return t.Terrain == TerrainMountain
}

// TileMap is one authoritative visible-map snapshot. It is immutable after
// construction: every map_update builds a fresh TileMap that replaces the
// previous one wholesale, so snapshots can be shared across goroutines freely.
type TileMap struct {
	tiles []Tile
	index map[[2]int]int
}

// NewTileMap builds a snapshot from already-converted tiles.
func NewTileMap(tiles []Tile) *TileMap {
	m := &TileMap{
		tiles: tiles,
		index: make(map[[2]int]int, len(tiles)),
	}
	for i, t := range tiles {
		m.index[[2]int{t.X, t.Y}] = i
	}
	return m
}

// FromWire converts a map_update tile list into a snapshot.
func FromWire(wire []proto.Tile) *TileMap {
	tiles := make([]Tile, 0, len(wire))
	for _, w := range wire {
		terrain, cityKind := ParseTerrain(w.Kind)
		tiles = append(tiles, Tile{
			X:         w.X,
			Y:         w.Y,
			Terrain:   terrain,
			CityKind:  cityKind,
			Units:     w.Count,
			Owner:     w.Owner,
			HasVision: w.HasVision,
		})
	}
	return NewTileMap(tiles)
}

// At returns the tile at (x, y) if the snapshot contains it.
func (m *TileMap) At(x, y int) (Tile, bool) {
	if m == nil {
		return Tile{}, false
	}
	i, ok := m.index[[2]int{x, y}]
	if !ok {
		return Tile{}, false
	}
	return m.tiles[i], true
}

// Len reports the number of visible tiles.
func (m *TileMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.tiles)
}

// Tiles returns the snapshot's tiles in wire order. Callers must not mutate
// the returned slice.
func (m *TileMap) Tiles() []Tile {
	if m == nil {
		return nil
	}
	return m.tiles
}

// ObserverGroup is the reserved non-participant group id.
const ObserverGroup = 8

// OwnerToken converts a group id into the tile owner token used on the wire.
// Observers and unassigned players own nothing.
func OwnerToken(groupID int) string {
	if groupID < 0 || groupID >= ObserverGroup {
		return ""
	}
	return fmt.Sprintf("team_%d", groupID)
}

var (
	ErrNoTile            = errors.New("origin tile is not on the visible map")
	ErrNotOwned          = errors.New("origin tile is not held by the player")
	ErrNotEnoughUnits    = errors.New("origin tile needs more than one unit")
	ErrImpassable        = errors.New("destination tile is impassable")
	ErrDestinationHidden = errors.New("destination tile is out of vision")
)

// CanMove validates one movement step against the snapshot: the origin must be
// held by owner with more than one unit, and the destination must be a visible
// tile that is neither impassable nor fog.
func CanMove(m *TileMap, owner string, fromX, fromY, toX, toY int) error {
	from, ok := m.At(fromX, fromY)
	if !ok {
		return ErrNoTile
	}
	if owner == "" || from.Owner != owner {
		return ErrNotOwned
	}
	if from.Units <= 1 {
		return ErrNotEnoughUnits
	}
	to, ok := m.At(toX, toY)
	if !ok || to.Terrain == TerrainFog {
		return ErrDestinationHidden
	}
	if to.Impassable() {
		return ErrImpassable
	}
	return nil
}

// Adjacent reports whether two tiles share an edge. Diagonal steps are not
// legal moves.
func Adjacent(fromX, fromY, toX, toY int) bool {
	dx := fromX - toX
	if dx < 0 {
		dx = -dx
	}
	dy := fromY - toY
	if dy < 0 {
		dy = -dy
	}
	return (dx == 1 && dy == 0) || (dx == 0 && dy == 1)
}
