package point

import "github.com/luxfi/hyperlane/layer"

// BaseKind is the tagged union of resource kinds.
type BaseKind uint8

const (
	Root BaseKind = iota
	SpaceKind
	User
	App
	Mechtron
	FileSystem
	FileKind
	Database
	Artifact
	StarKind
	UserBase
	BaseK
	Bundle
	BundleSeries
	Control
	Portal
	Driver
	GlobalKind
	Repo
)

var baseKindNames = map[BaseKind]string{
	Root: "Root", SpaceKind: "Space", User: "User", App: "App",
	Mechtron: "Mechtron", FileSystem: "FileSystem", FileKind: "File",
	Database: "Database", Artifact: "Artifact", StarKind: "Star",
	UserBase: "UserBase", BaseK: "Base", Bundle: "Bundle",
	BundleSeries: "BundleSeries", Control: "Control", Portal: "Portal",
	Driver: "Driver", GlobalKind: "Global", Repo: "Repo",
}

func (k BaseKind) String() string {
	if s, ok := baseKindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Kind is a fully-qualified resource kind: a BaseKind, an optional SubKind
// string, and an optional Specific (provider/vendor/product/variant/version).
type Kind struct {
	Base     BaseKind
	Sub      string // optional sub-kind, e.g. Mechtron<"wasm">
	Specific *Specific
}

// TraversalPlan returns the ordered subset of layers waves targeting this
// Kind must visit. The defaults below follow the kind's role: drivers that terminate
// host logic visit the full stack down to Core; pure routing/forwarding
// kinds (Star) never descend past Portal.
func (k Kind) TraversalPlan() []layer.Layer {
	switch k.Base {
	case StarKind, Control:
		return []layer.Layer{layer.Field, layer.Shell, layer.Portal}
	case GlobalKind, Root, SpaceKind:
		return []layer.Layer{layer.Field, layer.Shell}
	case Driver, Portal:
		return []layer.Layer{layer.Field, layer.Shell, layer.Portal, layer.Host, layer.Guest}
	default:
		return []layer.Layer{layer.Field, layer.Shell, layer.Portal, layer.Host, layer.Guest, layer.Core}
	}
}

// Forwarder reports whether this Kind may relay waves to adjacent Stars.
func (k Kind) Forwarder() bool { return k.Base == StarKind }
