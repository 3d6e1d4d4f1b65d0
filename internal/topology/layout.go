package topology

import (
	"sort"
	"time"

	"fibermap/core-go/internal/geo"
)

// Load is the traffic class of a node or link.
type Load string

const (
	LoadLow      Load = "low"
	LoadModerate Load = "moderate"
	LoadHigh     Load = "high"
	LoadUnknown  Load = "unknown"
)

const (
	DefaultWarnBps = 100_000_000
	DefaultHighBps = 500_000_000
)

type Device struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	ParentID string     `json:"parent_id,omitempty"`
	Role     string     `json:"role,omitempty"`
	Location *geo.Point `json:"location,omitempty"`
}

// Sample is the most recent throughput reading for a device or link.
type Sample struct {
	RxBps     int64     `json:"rx_bps"`
	TxBps     int64     `json:"tx_bps"`
	SampledAt time.Time `json:"sampled_at"`
}

func (s Sample) TotalBps() float64 {
	return float64(s.RxBps) + float64(s.TxBps)
}

// LinkKey identifies a directed parent to child link.
type LinkKey struct {
	Parent string
	Child  string
}

type Metrics struct {
	Devices map[string]Sample
	Links   map[LinkKey]Sample
}

type Options struct {
	BaseX float64
	BaseY float64
	XGap  float64
	YGap  float64

	WarnBps float64
	HighBps float64
}

func DefaultOptions() Options {
	return Options{
		BaseX:   80,
		BaseY:   60,
		XGap:    220,
		YGap:    90,
		WarnBps: DefaultWarnBps,
		HighBps: DefaultHighBps,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.XGap == 0 && o.YGap == 0 && o.BaseX == 0 && o.BaseY == 0 {
		o.BaseX, o.BaseY, o.XGap, o.YGap = d.BaseX, d.BaseY, d.XGap, d.YGap
	}
	if o.WarnBps <= 0 {
		o.WarnBps = d.WarnBps
	}
	if o.HighBps <= 0 {
		o.HighBps = d.HighBps
	}
	return o
}

type Node struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Role     string     `json:"role,omitempty"`
	ParentID string     `json:"parent_id,omitempty"`
	Depth    int        `json:"depth"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	Location *geo.Point `json:"location,omitempty"`
	TotalBps *float64   `json:"total_bps"`
	Load     Load       `json:"load"`
}

type Link struct {
	Source    string   `json:"source"`
	Target    string   `json:"target"`
	X1        float64  `json:"x1"`
	Y1        float64  `json:"y1"`
	X2        float64  `json:"x2"`
	Y2        float64  `json:"y2"`
	DistanceM *float64 `json:"distance_m"`
	TotalBps  *float64 `json:"total_bps"`
	Load      Load     `json:"load"`
}

type Stats struct {
	NodeCount int `json:"node_count"`
	LinkCount int `json:"link_count"`
	Low       int `json:"low"`
	Moderate  int `json:"moderate"`
	High      int `json:"high"`
	Unknown   int `json:"unknown"`
}

type Result struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
	Stats Stats  `json:"stats"`
}

// Classify buckets a throughput reading. ok is false when there is no sample.
func (o Options) Classify(totalBps float64, ok bool) Load {
	switch {
	case !ok:
		return LoadUnknown
	case totalBps < o.WarnBps:
		return LoadLow
	case totalBps < o.HighBps:
		return LoadModerate
	default:
		return LoadHigh
	}
}

// Layout arranges the device forest in columns by depth and classifies every
// node and link. Parent cycles and dangling parents are laid out as roots, so
// every distinct device id appears exactly once.
func Layout(devices []Device, m Metrics, opts Options) Result {
	opts = opts.withDefaults()

	byID := make(map[string]Device, len(devices))
	all := make([]Device, 0, len(devices))
	for _, d := range devices {
		if _, dup := byID[d.ID]; dup {
			continue
		}
		byID[d.ID] = d
		all = append(all, d)
	}
	sortDevices(all)

	children := make(map[string][]Device)
	var roots []Device
	for _, d := range all {
		if parent, ok := resolveParent(d, byID); ok {
			children[parent] = append(children[parent], d)
			continue
		}
		roots = append(roots, d)
	}

	var levels [][]Device
	visited := make(map[string]bool, len(all))
	var visit func(d Device, depth int)
	visit = func(d Device, depth int) {
		if visited[d.ID] {
			return
		}
		visited[d.ID] = true
		for len(levels) <= depth {
			levels = append(levels, nil)
		}
		levels[depth] = append(levels[depth], d)
		for _, c := range children[d.ID] {
			visit(c, depth+1)
		}
	}
	for _, r := range roots {
		visit(r, 0)
	}
	// devices only reachable through a cycle
	for _, d := range all {
		if !visited[d.ID] {
			visit(d, 0)
		}
	}

	res := Result{Nodes: make([]Node, 0, len(all)), Links: []Link{}}
	pos := make(map[string]Node, len(all))
	for depth, level := range levels {
		sortDevices(level)
		for idx, d := range level {
			n := Node{
				ID:       d.ID,
				Name:     d.Name,
				Role:     d.Role,
				ParentID: d.ParentID,
				Depth:    depth,
				X:        opts.BaseX + float64(depth)*opts.XGap,
				Y:        opts.BaseY + float64(idx)*opts.YGap,
				Location: d.Location,
			}
			s, ok := m.Devices[d.ID]
			n.TotalBps = totalPtr(s, ok)
			n.Load = opts.Classify(s.TotalBps(), ok)
			pos[d.ID] = n
			res.Nodes = append(res.Nodes, n)
		}
	}

	for _, child := range res.Nodes {
		parentID, ok := resolveParent(byID[child.ID], byID)
		if !ok {
			continue
		}
		parent, ok := pos[parentID]
		if !ok {
			continue
		}
		l := Link{
			Source: parent.ID,
			Target: child.ID,
			X1:     parent.X,
			Y1:     parent.Y,
			X2:     child.X,
			Y2:     child.Y,
		}
		if parent.Location != nil && child.Location != nil {
			d := geo.HaversineM(*parent.Location, *child.Location)
			l.DistanceM = &d
		}
		s, ok := m.Links[LinkKey{Parent: parent.ID, Child: child.ID}]
		if !ok {
			s, ok = m.Devices[child.ID]
		}
		l.TotalBps = totalPtr(s, ok)
		l.Load = opts.Classify(s.TotalBps(), ok)
		res.Links = append(res.Links, l)
	}

	res.Stats = summarize(res)
	return res
}

func resolveParent(d Device, byID map[string]Device) (string, bool) {
	if d.ParentID == "" || d.ParentID == d.ID {
		return "", false
	}
	if _, ok := byID[d.ParentID]; !ok {
		return "", false
	}
	return d.ParentID, true
}

func sortDevices(ds []Device) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Name != ds[j].Name {
			return ds[i].Name < ds[j].Name
		}
		return ds[i].ID < ds[j].ID
	})
}

func totalPtr(s Sample, ok bool) *float64 {
	if !ok {
		return nil
	}
	v := s.TotalBps()
	return &v
}

func summarize(r Result) Stats {
	st := Stats{NodeCount: len(r.Nodes), LinkCount: len(r.Links)}
	for _, l := range r.Links {
		switch l.Load {
		case LoadLow:
			st.Low++
		case LoadModerate:
			st.Moderate++
		case LoadHigh:
			st.High++
		default:
			st.Unknown++
		}
	}
	return st
}
