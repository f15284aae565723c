package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/luxfi/hyperlane/access"
	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/log"
	"github.com/tidwall/buntdb"
)

const (
	particlePrefix = "particle:"
	grantPrefix    = "grant:"
	resetModeKey   = "meta:reset_mode"
)

// Store is a buntdb-backed Registry: an embedded key/value store whose
// glob-pattern ascending key scans serve Select's scan of every particle
// and ListAccess's query_root lookup.
type Store struct {
	mu  sync.Mutex
	db  *buntdb.DB
	log log.Logger
}

// wireRecord is the JSON-on-disk shape of a Record, since point.Point and
// point.Kind carry unexported-shaped fields better expressed as plain data
// across the buntdb boundary.
type wireRecord struct {
	Point      string              `json:"point"`
	Route      point.Route         `json:"route"`
	RouteKey   string              `json:"route_key"`
	Base       point.BaseKind      `json:"base"`
	Sub        string              `json:"sub"`
	Specific   *point.Specific     `json:"specific,omitempty"`
	Status     Status              `json:"status"`
	Properties map[string]Property `json:"properties"`
	Star       string              `json:"star,omitempty"`
	Host       string              `json:"host,omitempty"`
	Owner      string              `json:"owner"`
	Sequence   int64               `json:"sequence"`
	Parent     string              `json:"parent"`
}

// NewStore opens (or creates) a buntdb-backed registry at path. Use ":memory:"
// for an ephemeral in-process registry (tests, single-node demos).
func NewStore(path string, logger log.Logger) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errs.Wrapf(errs.Internal, "registry: open %s: %w", path, err)
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Store{db: db, log: logger}, nil
}

// Close releases the underlying store.
func (s *Store) Close() error { return s.db.Close() }

func particleKey(p point.Point) string { return particlePrefix + p.Key() }

func (s *Store) getWire(tx *buntdb.Tx, p point.Point) (wireRecord, bool) {
	raw, err := tx.Get(particleKey(p))
	if err != nil {
		return wireRecord{}, false
	}
	var wr wireRecord
	if err := json.Unmarshal([]byte(raw), &wr); err != nil {
		return wireRecord{}, false
	}
	return wr, true
}

func toRecord(wr wireRecord) Record {
	var specific *point.Specific
	if wr.Specific != nil {
		specific = wr.Specific
	}
	var star, host *point.Point
	if wr.Star != "" {
		sp := mustParseKey(wr.Star)
		star = &sp
	}
	if wr.Host != "" {
		hp := mustParseKey(wr.Host)
		host = &hp
	}
	return Record{
		Details: Details{
			Stub: Stub{
				Point:  mustParseKey(wr.Point),
				Kind:   point.Kind{Base: wr.Base, Sub: wr.Sub, Specific: specific},
				Status: wr.Status,
			},
			Properties: wr.Properties,
		},
		Location: Location{Star: star, Host: host},
		Owner:    wr.Owner,
		Sequence: wr.Sequence,
	}
}

// mustParseKey reconstructs a point.Point from its Key() rendering, used
// only for values this Store itself wrote via putWire/Grant.
func mustParseKey(key string) point.Point {
	p, _ := point.ParseKey(key)
	return p
}

func (s *Store) putWire(tx *buntdb.Tx, p point.Point, wr wireRecord) error {
	raw, err := json.Marshal(wr)
	if err != nil {
		return errs.Wrap(errs.Internal, err)
	}
	_, _, err = tx.Set(particleKey(p), string(raw), nil)
	return err
}

// Register inserts a particle with status=Pending, honoring the Dupe /
// Ensure / Override strategy contract.
func (s *Store) Register(reg Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, exists := s.getWire(tx, reg.Point); exists {
			switch reg.Strategy {
			case Ensure, Override:
				return nil
			default:
				return errs.Wrapf(errs.Dupe, "registry: %s already registered", reg.Point)
			}
		}
		parent, hasParent := reg.Point.Parent()
		parentKey := ""
		if hasParent {
			parentKey = parent.Key()
		}
		wr := wireRecord{
			Point:      reg.Point.Key(),
			Route:      reg.Point.RouteSpace,
			RouteKey:   reg.Point.RouteKey,
			Base:       reg.Kind.Base,
			Sub:        reg.Kind.Sub,
			Specific:   reg.Kind.Specific,
			Status:     Pending,
			Properties: map[string]Property{},
			Owner:      reg.Owner,
			Parent:     parentKey,
		}
		if err := applyMods(wr.Properties, reg.Properties); err != nil {
			return err
		}
		return s.putWire(tx, reg.Point, wr)
	})
}

func applyMods(props map[string]Property, mods []PropertyMod) error {
	for _, m := range mods {
		if m.Unset {
			if p, ok := props[m.Key]; ok && p.Locked {
				return errs.Wrap(errs.Forbidden, errs.ErrLocked)
			}
			delete(props, m.Key)
			continue
		}
		if existing, ok := props[m.Key]; ok && existing.Locked {
			// "Set on an existing locked row is a no-op".
			continue
		}
		props[m.Key] = Property{Key: m.Key, Value: m.Value}
	}
	return nil
}

func (s *Store) mutate(p point.Point, fn func(wr *wireRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *buntdb.Tx) error {
		wr, ok := s.getWire(tx, p)
		if !ok {
			return errs.Wrapf(errs.NotFound, "registry: %s not found", p)
		}
		if err := fn(&wr); err != nil {
			return err
		}
		return s.putWire(tx, p, wr)
	})
}

// AssignStar updates the Star location column for an existing row.
func (s *Store) AssignStar(p point.Point, star point.Point) error {
	return s.mutate(p, func(wr *wireRecord) error {
		wr.Star = star.Key()
		return nil
	})
}

// AssignHost updates the Host location column for an existing row.
func (s *Store) AssignHost(p point.Point, host point.Point) error {
	return s.mutate(p, func(wr *wireRecord) error {
		wr.Host = host.Key()
		return nil
	})
}

// SetStatus updates a row's status.
func (s *Store) SetStatus(p point.Point, status Status) error {
	return s.mutate(p, func(wr *wireRecord) error {
		wr.Status = status
		return nil
	})
}

// SetProperties applies Set/Unset mods transactionally.
func (s *Store) SetProperties(p point.Point, mods []PropertyMod) error {
	return s.mutate(p, func(wr *wireRecord) error {
		if wr.Properties == nil {
			wr.Properties = map[string]Property{}
		}
		return applyMods(wr.Properties, mods)
	})
}

// Sequence atomically increments and returns a row's sequence counter, used
// to generate unique child names.
func (s *Store) Sequence(p point.Point) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next int64
	err := s.db.Update(func(tx *buntdb.Tx) error {
		wr, ok := s.getWire(tx, p)
		if !ok {
			return errs.Wrapf(errs.NotFound, "registry: %s not found", p)
		}
		wr.Sequence++
		next = wr.Sequence
		return s.putWire(tx, p, wr)
	})
	return next, err
}

// Record returns the particle record plus properties; Root returns a
// synthetic record.
func (s *Store) Record(p point.Point) (Record, error) {
	if p.Root() {
		return Record{Details: Details{Stub: Stub{Point: p, Kind: point.Kind{Base: point.Root}, Status: Ready}, Properties: map[string]Property{}}}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec Record
	err := s.db.View(func(tx *buntdb.Tx) error {
		wr, ok := s.getWire(tx, p)
		if !ok {
			return errs.Wrapf(errs.NotFound, "registry: %s not found", p)
		}
		rec = toRecord(wr)
		return nil
	})
	return rec, err
}

// Query walks parents from root, collecting (segment, kind) tuples, used by
// the access evaluator.
func (s *Store) Query(p point.Point) ([]HierarchyEntry, error) {
	chain := append(p.Ancestors(), p)
	out := make([]HierarchyEntry, 0, len(chain))
	for _, anc := range chain {
		if anc.Root() {
			out = append(out, HierarchyEntry{Point: anc, Kind: point.Kind{Base: point.Root}})
			continue
		}
		rec, err := s.Record(anc)
		if err != nil {
			return nil, err
		}
		out = append(out, HierarchyEntry{Point: anc, Kind: rec.Details.Stub.Kind})
	}
	return out, nil
}

func (s *Store) kindOf(p point.Point) (point.Kind, bool) {
	rec, err := s.Record(p)
	if err != nil {
		return point.Kind{}, false
	}
	return rec.Details.Stub.Kind, true
}

// Select scans every registered point in ascending key order and keeps
// those that the entire selector matches, not just its current hop.
func (s *Store) Select(sel point.Selector) ([]point.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []point.Point
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(particlePrefix+"*", func(_, raw string) bool {
			var wr wireRecord
			if err := json.Unmarshal([]byte(raw), &wr); err != nil {
				return true
			}
			p := mustParseKey(wr.Point)
			if sel.Matches(p, s.kindOfTx(tx)) {
				out = append(out, p)
			}
			return true
		})
	})
	return out, err
}

// kindOfTx is the in-transaction variant of kindOf, used by Select so the
// selector's kind-bracket filters can be evaluated without re-entering a
// fresh read transaction per candidate.
func (s *Store) kindOfTx(tx *buntdb.Tx) func(point.Point) (point.Kind, bool) {
	return func(p point.Point) (point.Kind, bool) {
		wr, ok := s.getWire(tx, p)
		if !ok {
			return point.Kind{}, false
		}
		return point.Kind{Base: wr.Base, Sub: wr.Sub, Specific: wr.Specific}, true
	}
}

// Delete resolves sel via Select then removes the matching rows.
func (s *Store) Delete(sel point.Selector) (int, error) {
	points, err := s.Select(sel)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	err = s.db.Update(func(tx *buntdb.Tx) error {
		for _, p := range points {
			if _, err := tx.Delete(particleKey(p)); err == nil {
				n++
			}
		}
		return nil
	})
	return n, err
}

// grantKey and grantWire are the on-disk shape of an access.Grant, keyed by
// grant id; lookups by QueryRoot scan every grant and filter.
func grantKey(id string) string { return grantPrefix + id }

type grantWire struct {
	ID          string           `json:"id"`
	Kind        access.GrantKind `json:"kind"`
	Privilege   string           `json:"privilege,omitempty"`
	Mode        access.MaskMode  `json:"mode"`
	Permissions []byte           `json:"permissions,omitempty"`
	OnSelector  string           `json:"on_selector"`
	ToSelector  string           `json:"to_selector"`
	ByParticle  string           `json:"by_particle"`
	QueryRoot   string           `json:"query_root"`
}

// Grant inserts an access grant, keyed by the longest non-selector prefix
// of OnSelector as its QueryRoot.
func (s *Store) Grant(g access.Grant) (string, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	perm, err := g.Permissions.MarshalBinary()
	if err != nil {
		return "", errs.Wrap(errs.Internal, err)
	}
	wr := grantWire{
		ID:          g.ID,
		Kind:        g.Kind,
		Privilege:   g.Privilege,
		Mode:        g.Mode,
		Permissions: perm,
		OnSelector:  g.OnSelector,
		ToSelector:  g.ToSelector,
		ByParticle:  g.ByParticle,
		QueryRoot:   queryRoot(g.OnSelector),
	}
	raw, err := json.Marshal(wr)
	if err != nil {
		return "", errs.Wrap(errs.Internal, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(grantKey(g.ID), string(raw), nil)
		return err
	})
	return g.ID, err
}

// queryRoot returns the longest literal (non-wildcard, non-recursive) prefix
// of a selector string, used as the grant's lookup key.
func queryRoot(selector string) string {
	body := selector
	if idx := strings.Index(selector, "::"); idx >= 0 {
		body = selector[idx+2:]
	}
	parts := strings.Split(body, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "*" || p == "**" || strings.Contains(p, "<") {
			break
		}
		out = append(out, p)
	}
	return strings.Join(out, ":")
}

func (s *Store) getGrant(tx *buntdb.Tx, id string) (grantWire, bool) {
	raw, err := tx.Get(grantKey(id))
	if err != nil {
		return grantWire{}, false
	}
	var gw grantWire
	if err := json.Unmarshal([]byte(raw), &gw); err != nil {
		return grantWire{}, false
	}
	return gw, true
}

// GrantsAt returns every grant whose QueryRoot equals root's key — the
// per-level lookup the access evaluator's ancestry walk performs.
func (s *Store) GrantsAt(root point.Point) ([]access.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []access.Grant
	key := root.Key()
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(grantPrefix+"*", func(_, raw string) bool {
			var gw grantWire
			if err := json.Unmarshal([]byte(raw), &gw); err != nil {
				return true
			}
			if gw.QueryRoot == key {
				out = append(out, toGrant(gw))
			}
			return true
		})
	})
	return out, err
}

func toGrant(gw grantWire) access.Grant {
	var perms access.Permissions
	_ = perms.UnmarshalBinary(gw.Permissions)
	return access.Grant{
		ID:          gw.ID,
		Kind:        gw.Kind,
		Privilege:   gw.Privilege,
		Mode:        gw.Mode,
		Permissions: perms,
		OnSelector:  gw.OnSelector,
		ToSelector:  gw.ToSelector,
		ByParticle:  gw.ByParticle,
	}
}

// RemoveAccess permits the removal only if by has full access on the
// grant's ByParticle.
func (s *Store) RemoveAccess(id string, by point.Point, eval AccessEvaluator) error {
	s.mu.Lock()
	var gw grantWire
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		gw, found = s.getGrant(tx, id)
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !found {
		return errs.Wrapf(errs.NotFound, "registry: grant %s not found", id)
	}
	byParticle := mustParseKey(gw.ByParticle)
	acc, err := eval.Access(by, byParticle)
	if err != nil {
		return err
	}
	if !acc.HasFull() {
		return errs.Wrap(errs.Forbidden, fmt.Errorf("registry: %s lacks full access on %s", by, byParticle))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(grantKey(id))
		return err
	})
}

// ListAccess gathers grants whose QueryRoot matches any point in the
// selection, optionally filtered by whether to matches ToSelector
//, sorted by id.
func (s *Store) ListAccess(to *point.Point, onSelector point.Selector) ([]access.Grant, error) {
	points, err := s.Select(onSelector)
	if err != nil {
		return nil, err
	}
	roots := make(map[string]struct{}, len(points))
	for _, p := range points {
		roots[p.Key()] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []access.Grant
	err = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(grantPrefix+"*", func(_, raw string) bool {
			var gw grantWire
			if jsonErr := json.Unmarshal([]byte(raw), &gw); jsonErr != nil {
				return true
			}
			if _, ok := roots[gw.QueryRoot]; !ok {
				return true
			}
			if to != nil {
				toSel, parseErr := point.ParseSelector(gw.ToSelector)
				if parseErr != nil || !toSel.Matches(*to, s.kindOfTx(tx)) {
					return true
				}
			}
			out = append(out, toGrant(gw))
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Chown requires by to have Super on each selected point before rewriting
// its owner column.
func (s *Store) Chown(sel point.Selector, newOwner point.Point, by point.Point, eval AccessEvaluator) error {
	points, err := s.Select(sel)
	if err != nil {
		return err
	}
	for _, p := range points {
		acc, err := eval.Access(by, p)
		if err != nil {
			return err
		}
		if acc.Kind != access.SuperAccess && acc.Kind != access.SuperOwner {
			return errs.Wrapf(errs.Forbidden, "registry: %s lacks Super on %s", by, p)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, p := range points {
			wr, ok := s.getWire(tx, p)
			if !ok {
				continue
			}
			wr.Owner = newOwner.Key()
			if err := s.putWire(tx, p, wr); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetResetMode writes the reset_mode safety flag.
func (s *Store) SetResetMode(mode ResetMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(resetModeKey, fmt.Sprint(int(mode)), nil)
		return err
	})
}

func (s *Store) resetMode(tx *buntdb.Tx) ResetMode {
	raw, err := tx.Get(resetModeKey)
	if err != nil {
		return ResetNone
	}
	if raw == fmt.Sprint(int(Scorch)) {
		return Scorch
	}
	return ResetNone
}

// Scorch drops and recreates the schema, guarded by reset_mode: scorching
// requires inserting Scorch first. On success the guard is reset to None.
func (s *Store) Scorch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mode ResetMode
	if err := s.db.View(func(tx *buntdb.Tx) error {
		mode = s.resetMode(tx)
		return nil
	}); err != nil {
		return err
	}
	if mode != Scorch {
		return errs.Wrap(errs.Forbidden, errs.ErrNoScorch)
	}
	s.log.Info("scorching registry")
	return s.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		if err := tx.AscendKeys("*", func(k, _ string) bool {
			if k != resetModeKey {
				keys = append(keys, k)
			}
			return true
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil {
				return err
			}
		}
		_, _, err := tx.Set(resetModeKey, fmt.Sprint(int(ResetNone)), nil)
		return err
	})
}
