// Package surface defines a Surface: a point.Point paired with a Layer and
// an optional Topic.
package surface

import (
	"fmt"

	"github.com/luxfi/hyperlane/layer"
	"github.com/luxfi/hyperlane/point"
)

// Re-exported for call-site convenience.
type (
	Layer     = layer.Layer
	Direction = layer.Direction
)

const (
	Gravity = layer.Gravity
	Field   = layer.Field
	Shell   = layer.Shell
	Portal  = layer.Portal
	Host    = layer.Host
	Guest   = layer.Guest
	Core    = layer.Core

	Fabric = layer.Fabric
	ToCore = layer.ToCore
)

// Surface pairs an addressable Point with a Layer and optional Topic.
type Surface struct {
	Point point.Point
	Layer Layer
	Topic string // optional sub-addressing within Layer; "" means none
}

// New builds a Surface with no topic.
func New(p point.Point, l Layer) Surface { return Surface{Point: p, Layer: l} }

// WithTopic returns a copy of s addressed at the given topic.
func (s Surface) WithTopic(topic string) Surface {
	s.Topic = topic
	return s
}

func (s Surface) String() string {
	if s.Topic == "" {
		return fmt.Sprintf("%s@%s", s.Point, s.Layer)
	}
	return fmt.Sprintf("%s@%s#%s", s.Point, s.Layer, s.Topic)
}

// Equal reports whether two surfaces address the same point, layer, and topic.
func (s Surface) Equal(o Surface) bool {
	return s.Point.Equal(o.Point) && s.Layer == o.Layer && s.Topic == o.Topic
}
